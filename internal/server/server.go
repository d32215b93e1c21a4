package server

import (
	"context"
	goerrors "errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/pprof"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"mingmou/internal/config"
	"mingmou/internal/dao"
	"mingmou/internal/fixture"
	"mingmou/internal/session"
	"mingmou/pkg/log"
)

// StatusSource reports the state of the detection model.
type StatusSource interface {
	Status(ctx context.Context) (*dao.StatusResponse, error)
}

type Server struct {
	conf       *config.Config
	sess       *session.Session
	fixtures   *fixture.Store
	status     StatusSource
	httpServer *http.Server
	logger     *logrus.Entry
}

func NewServer(ctx context.Context, conf *config.Config, sess *session.Session, fixtures *fixture.Store, status StatusSource) *Server {
	return &Server{
		conf:     conf,
		sess:     sess,
		fixtures: fixtures,
		status:   status,
		logger:   log.GetLogger(ctx),
	}
}

func RequestId() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestId := c.GetHeader(log.HttpXRequestId)
		if requestId == "" {
			requestId = strings.ReplaceAll(uuid.New().String(), "-", "")
		}
		c.Set(log.CtxRequestId, requestId)
		c.Header(log.HttpXRequestId, requestId)
		c.Next()
	}
}

func Logger() gin.HandlerFunc {
	return func(c *gin.Context) {
		t := time.Now()
		c.Next()
		latency := time.Since(t)
		status := c.Writer.Status()

		log.GetLogger(c).Info("ip: ", c.ClientIP(), " method: ", c.Request.Method, " path: ",
			c.Request.URL.Path, " status: ", status, " latency: ", latency)
	}
}

// requestCtx carries the request id into outgoing detection API calls.
func requestCtx(c *gin.Context) context.Context {
	return log.WithRequestId(c.Request.Context(), c.GetString(log.CtxRequestId))
}

func (s *Server) Start() {
	gin.SetMode(gin.ReleaseMode)
	router := s.SetUpRouter()
	pprof.Register(router)
	addr := s.conf.Server.Addr
	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: router,
	}

	var err error
	if s.conf.Server.SSLCert != "" && s.conf.Server.SSLKey != "" {
		logrus.Infof("start https server on %s", addr)
		err = s.httpServer.ListenAndServeTLS(s.conf.Server.SSLCert, s.conf.Server.SSLKey)
	} else {
		logrus.Infof("start http server on %s", addr)
		err = s.httpServer.ListenAndServe()
	}
	if err != nil && !goerrors.Is(err, http.ErrServerClosed) {
		logrus.Fatal(err)
	}
}

func (s *Server) Shutdown(ctx context.Context) {
	if s.httpServer == nil {
		return
	}
	if err := s.httpServer.Shutdown(ctx); err != nil {
		logrus.Fatalf("server forced to shutdown: %v", err)
	}
}

type ErrorResponse struct {
	// 错误信息
	Error string `json:"error"`
}

func (s *Server) writeError(c *gin.Context, code int, err error) {
	c.JSON(code, ErrorResponse{
		Error: err.Error(),
	})
}
