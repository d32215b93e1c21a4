package server

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"

	"github.com/gin-gonic/gin"

	"mingmou/internal/detector"
	"mingmou/internal/history"
	"mingmou/internal/report"
	"mingmou/internal/session"
	"mingmou/internal/upload"
)

const formFiles = "files"

type SelectFilesResponse struct {
	Selection *upload.Selection `json:"selection,omitempty"`
	// 被拒绝的文件及原因
	Rejected []string `json:"rejected,omitempty"`
}

type ReportQuery struct {
	Format string `form:"format" binding:"omitempty,oneof=text json pdf"`
}

type ChartQuery struct {
	Kind string `form:"kind" binding:"omitempty,oneof=confidence severity"`
}

// statusFor maps session and detection errors onto HTTP status codes.
func statusFor(err error) int {
	var verr *upload.ValidationError
	var herr *detector.HTTPStatusError
	switch {
	case errors.Is(err, session.ErrBusy):
		return http.StatusConflict
	case errors.Is(err, session.ErrNothingSelected), errors.As(err, &verr):
		return http.StatusBadRequest
	case errors.Is(err, session.ErrNoResult), errors.Is(err, session.ErrUnknownFixture),
		errors.Is(err, history.ErrNotFound), errors.Is(err, report.ErrNoResultID):
		return http.StatusNotFound
	case errors.As(err, &herr), errors.Is(err, detector.ErrDetectionFailed):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

// handleGetState 获取控制台状态
// @Summary 获取控制台状态
// @Description 当前选择、检测结果视图、批量结果与提示消息
// @Tags 控制台
// @Produce json
// @Success 200 {object} session.State "控制台状态"
// @Router /ui/state [get]
func (s *Server) handleGetState(c *gin.Context) {
	c.JSON(http.StatusOK, s.sess.State())
}

// handleGetStatus 获取模型状态
// @Summary 获取模型状态
// @Tags 控制台
// @Produce json
// @Success 200 {object} dao.StatusResponse "模型状态"
// @Failure 502 {object} ErrorResponse "检测服务不可用"
// @Router /ui/status [get]
func (s *Server) handleGetStatus(c *gin.Context) {
	st, err := s.status.Status(requestCtx(c))
	if err != nil {
		s.writeError(c, http.StatusBadGateway, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

func readFormFile(fh *multipart.FileHeader, maxSize int64) (upload.File, error) {
	f := upload.File{
		Name:         fh.Filename,
		DeclaredType: fh.Header.Get("Content-Type"),
		Size:         fh.Size,
	}
	// oversized files are rejected on the declared size
	if fh.Size > maxSize {
		return f, nil
	}
	r, err := fh.Open()
	if err != nil {
		return f, fmt.Errorf("open %s: %w", fh.Filename, err)
	}
	defer r.Close()
	if f.Data, err = io.ReadAll(r); err != nil {
		return f, fmt.Errorf("read %s: %w", fh.Filename, err)
	}
	return f, nil
}

// handleSelectFiles 选择待检测的图片，多个文件进入批量模式
// @Summary 选择待检测的图片
// @Description 单个文件进入单图模式，多个文件进入批量模式，不合格的文件被拒绝
// @Tags 控制台
// @Accept multipart/form-data
// @Produce json
// @Param files formData file true "图片文件"
// @Success 200 {object} SelectFilesResponse "选择成功"
// @Failure 400 {object} ErrorResponse "没有合格的图片"
// @Failure 409 {object} ErrorResponse "检测进行中"
// @Router /ui/files [post]
func (s *Server) handleSelectFiles(c *gin.Context) {
	form, err := c.MultipartForm()
	if err != nil {
		s.writeError(c, http.StatusBadRequest, err)
		return
	}
	headers := form.File[formFiles]
	if len(headers) == 0 {
		headers = form.File["file"]
	}

	files := make([]upload.File, 0, len(headers))
	for _, fh := range headers {
		f, err := readFormFile(fh, s.conf.Upload.MaxFileSize)
		if err != nil {
			s.writeError(c, http.StatusBadRequest, err)
			return
		}
		files = append(files, f)
	}

	sel, err := s.sess.Select(files)
	resp := SelectFilesResponse{Selection: sel}
	var verr *upload.ValidationError
	for _, e := range multiErrors(err) {
		if errors.As(e, &verr) {
			resp.Rejected = append(resp.Rejected, e.Error())
		}
	}
	if sel == nil {
		if err == nil {
			err = session.ErrNothingSelected
		}
		c.JSON(statusFor(err), gin.H{"error": err.Error(), "rejected": resp.Rejected})
		return
	}
	c.JSON(http.StatusOK, resp)
}

func multiErrors(err error) []error {
	if err == nil {
		return nil
	}
	if j, ok := err.(interface{ Unwrap() []error }); ok {
		return j.Unwrap()
	}
	return []error{err}
}

// handleListFixtures 列出演示图片
// @Summary 列出演示图片
// @Tags 演示图片
// @Produce json
// @Success 200 {object} map[string]interface{} "演示图片集合"
// @Router /ui/fixtures [get]
func (s *Server) handleListFixtures(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"set":      s.fixtures.SetName(),
		"fixtures": s.fixtures.List(),
	})
}

// handleSelectFixture 选择演示图片
// @Summary 选择演示图片
// @Tags 演示图片
// @Produce json
// @Param name path string true "演示图片名称"
// @Success 200 {object} SelectFilesResponse "选择成功"
// @Failure 404 {object} ErrorResponse "演示图片不存在"
// @Failure 409 {object} ErrorResponse "检测进行中"
// @Router /ui/fixtures/{name} [post]
func (s *Server) handleSelectFixture(c *gin.Context) {
	sel, err := s.sess.SelectFixture(c.Param("name"))
	if err != nil {
		s.writeError(c, statusFor(err), err)
		return
	}
	c.JSON(http.StatusOK, SelectFilesResponse{Selection: sel})
}

// handleDetect 开始检测
// @Summary 开始检测
// @Description 检测服务不可用时，演示图片返回离线结果
// @Tags 检测
// @Produce json
// @Success 200 {object} session.State "检测完成"
// @Failure 400 {object} ErrorResponse "未选择图片"
// @Failure 409 {object} ErrorResponse "检测进行中"
// @Failure 502 {object} ErrorResponse "检测失败"
// @Router /ui/detect [post]
func (s *Server) handleDetect(c *gin.Context) {
	if err := s.sess.Detect(requestCtx(c)); err != nil {
		s.writeError(c, statusFor(err), err)
		return
	}
	c.JSON(http.StatusOK, s.sess.State())
}

// handleClear 清除选择与结果
// @Summary 清除选择与结果
// @Tags 检测
// @Success 204 "已清除"
// @Failure 409 {object} ErrorResponse "检测进行中"
// @Router /ui/clear [post]
func (s *Server) handleClear(c *gin.Context) {
	if err := s.sess.Clear(); err != nil {
		s.writeError(c, statusFor(err), err)
		return
	}
	c.Status(http.StatusNoContent)
}

// handleOverlay 带标注框的检测图片
// @Summary 带标注框的检测图片
// @Tags 检测
// @Produce png
// @Success 200 {file} binary "PNG图片"
// @Failure 404 {object} ErrorResponse "没有检测结果"
// @Router /ui/overlay.png [get]
func (s *Server) handleOverlay(c *gin.Context) {
	c.Header("Content-Type", "image/png")
	if err := s.sess.WriteOverlay(c.Writer); err != nil {
		c.Header("Content-Type", "application/json")
		s.writeError(c, statusFor(err), err)
	}
}

// handleChart 置信度或严重程度柱状图
// @Summary 检测结果柱状图
// @Tags 检测
// @Produce png
// @Param kind query string false "图表类型" Enums(confidence, severity)
// @Success 200 {file} binary "PNG图片"
// @Failure 400 {object} ErrorResponse "请求参数错误"
// @Failure 404 {object} ErrorResponse "没有检测结果"
// @Router /ui/chart.png [get]
func (s *Server) handleChart(c *gin.Context) {
	var q ChartQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		s.writeError(c, http.StatusBadRequest, err)
		return
	}
	c.Header("Content-Type", "image/png")
	if err := s.sess.WriteChart(c.Writer, q.Kind == "severity"); err != nil {
		c.Header("Content-Type", "application/json")
		s.writeError(c, statusFor(err), err)
	}
}

// handleReport 下载检测报告
// @Summary 下载检测报告
// @Description pdf 格式需要检测服务保存的结果ID
// @Tags 报告
// @Produce octet-stream
// @Param format query string false "报告格式" Enums(text, json, pdf)
// @Success 200 {file} binary "报告文件"
// @Failure 400 {object} ErrorResponse "请求参数错误"
// @Failure 404 {object} ErrorResponse "没有检测结果"
// @Failure 502 {object} ErrorResponse "检测服务不可用"
// @Router /ui/report [get]
func (s *Server) handleReport(c *gin.Context) {
	var q ReportQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		s.writeError(c, http.StatusBadRequest, err)
		return
	}
	exp, err := s.sess.DownloadReport(requestCtx(c), q.Format)
	if err != nil {
		s.writeError(c, statusFor(err), err)
		return
	}
	c.Header("Content-Disposition", "attachment; filename*=UTF-8''"+url.PathEscape(exp.Filename))
	c.Data(http.StatusOK, exp.ContentType, exp.Data)
}

// handleListHistory 检测历史
// @Summary 检测历史
// @Description 检测服务不可用时返回本地历史
// @Tags 历史
// @Produce json
// @Success 200 {object} map[string][]dao.HistoryEntry "历史记录"
// @Router /ui/history [get]
func (s *Server) handleListHistory(c *gin.Context) {
	entries, err := s.sess.LoadHistory(requestCtx(c))
	if err != nil {
		s.logger.WithError(err).Warn("history service unavailable, serving local history")
	}
	c.JSON(http.StatusOK, gin.H{"history": entries})
}

// handleSelectHistory 查看历史检测结果
// @Summary 查看历史检测结果
// @Tags 历史
// @Produce json
// @Param id path string true "结果ID"
// @Success 200 {object} session.State "控制台状态"
// @Failure 404 {object} ErrorResponse "记录不存在"
// @Failure 409 {object} ErrorResponse "检测进行中"
// @Router /ui/history/{id} [post]
func (s *Server) handleSelectHistory(c *gin.Context) {
	if err := s.sess.SelectHistory(requestCtx(c), c.Param("id")); err != nil {
		s.writeError(c, statusFor(err), err)
		return
	}
	c.JSON(http.StatusOK, s.sess.State())
}
