package main

import (
	"net/http"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	lazyfile "github.com/rpcpool/lazy-remote-file/lazy-file"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"
	"k8s.io/klog/v2"
)

var fasterJson = jsoniter.ConfigCompatibleWithStandardLibrary

// startMetricsServer serves /metrics and /files on listenOn until the
// returned function is called.
func startMetricsServer(listenOn string, registry *lazyfile.Registry) func() {
	server := &fasthttp.Server{
		Handler:      fasthttp.CompressHandler(newMetricsHandler(registry)),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	go func() {
		klog.Infof("Metrics server listening on %s", listenOn)
		if err := server.ListenAndServe(listenOn); err != nil {
			klog.Errorf("metrics server: %v", err)
		}
	}()
	return func() {
		if err := server.Shutdown(); err != nil {
			klog.Errorf("failed to shut down metrics server: %v", err)
		}
	}
}

func newMetricsHandler(registry *lazyfile.Registry) fasthttp.RequestHandler {
	prom := fasthttpadaptor.NewFastHTTPHandler(promhttp.Handler())
	return func(c *fasthttp.RequestCtx) {
		switch string(c.Path()) {
		case "/metrics":
			prom(c)
		case "/files":
			replyJSON(c, http.StatusOK, registry.Stats())
		default:
			c.SetStatusCode(http.StatusNotFound)
		}
	}
}

func replyJSON(ctx *fasthttp.RequestCtx, code int, v any) {
	ctx.SetContentType("application/json")
	ctx.SetStatusCode(code)
	if err := fasterJson.NewEncoder(ctx).Encode(v); err != nil {
		klog.Errorf("failed to marshal response: %v", err)
		ctx.SetStatusCode(http.StatusInternalServerError)
	}
}
