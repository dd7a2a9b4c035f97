package opcua

import (
	"context"
	"fmt"

	"github.com/gopcua/opcua/ua"
	"github.com/gopcua/opcua/uacp"
	log "github.com/sirupsen/logrus"
)

type ctxKey string

const (
	ctxModel    ctxKey = "model"
	ctxSource   ctxKey = "source"
	ctxEndpoint ctxKey = "endpoint"
)

// WithModel tags ctx so that log lines name the model being served.
func WithModel(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, ctxModel, name)
}

// WithSource tags ctx with the model source being loaded.
func WithSource(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, ctxSource, name)
}

// WithEndpoint tags ctx with the server endpoint being browsed.
func WithEndpoint(ctx context.Context, url string) context.Context {
	return context.WithValue(ctx, ctxEndpoint, url)
}

func contextLogger(ctx context.Context) *log.Entry {
	cl := log.WithContext(ctx)
	if v, ok := ctx.Value(ctxModel).(string); ok {
		cl = cl.WithField("model", v)
	}
	if v, ok := ctx.Value(ctxSource).(string); ok {
		cl = cl.WithField("source", v)
	}
	if v, ok := ctx.Value(ctxEndpoint).(string); ok {
		cl = cl.WithField("endpoint", v)
	}
	return cl
}

// ContextLogger returns the logger carrying the fields set on ctx.
func ContextLogger(ctx context.Context) *log.Entry {
	return contextLogger(ctx)
}

func StatusCodeString(n ua.StatusCode) string {
	if d, ok := ua.StatusCodes[n]; ok {
		return d.Name
	}
	return fmt.Sprintf("0x%X", uint32(n))
}

// UAErrorDesc names the status code carried by err, if any.
func UAErrorDesc(err error) string {
	switch e := err.(type) {
	case ua.StatusCode:
		return StatusCodeString(e)
	case *uacp.Error:
		return StatusCodeString(ua.StatusCode(e.ErrorCode))
	default:
		return ""
	}
}
