// Package env reads the few process settings that come from the hosting
// platform rather than from LOCALLINK_ configuration.
package env

import (
	"os"
	"strconv"
	"strings"
	"sync"
)

// Port prefers the platform-assigned PORT over the configured one.
func Port(configured string) string {
	if p := strings.TrimSpace(os.Getenv("PORT")); p != "" {
		return p
	}
	return configured
}

// InstanceID names this process in logs, lock owners and change-feed
// origins. Two processes must never share one, so the fallback is host:pid.
var InstanceID = sync.OnceValue(func() string {
	return instanceID(os.Getenv, os.Hostname, os.Getpid())
})

func instanceID(getenv func(string) string, hostname func() (string, error), pid int) string {
	for _, key := range []string{"WORKER_ID", "DYNO"} {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			return v
		}
	}
	host, err := hostname()
	if err != nil || host == "" {
		host = "local"
	}
	return host + ":" + strconv.Itoa(pid)
}
