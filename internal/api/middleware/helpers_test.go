package middleware

import (
	"time"

	"github.com/shakurocom/iOS-Toolbox-sub000/internal/config"
)

func testServerConfig() config.ServerConfig {
	return config.ServerConfig{Port: 8080, LogLevel: "debug", ShutdownTimeout: time.Second}
}
