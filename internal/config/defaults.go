package config

import "strings"

// 默认值常量
const (
	defaultAppEnv          = "dev"
	defaultAppLogLevel     = "info"
	defaultAppHTTPAddr     = ":9991"
	defaultAppLogDir       = "logs"
	defaultAppDataDir      = "data"
	defaultDecisionLogPath = "data/decisions.db"
	defaultExchangeREST    = "https://fapi.binance.com"
	defaultExchangeTimeout = 10
	defaultAdvisorModel    = "gpt-4o-mini"
	defaultAdvisorTimeout  = 10
)

func (c *Config) applyDefaults() {
	c.App.applyDefaults()
	c.Exchange.applyDefaults()
	c.Advisor.applyDefaults()
}

func (a *AppConfig) applyDefaults() {
	if strings.TrimSpace(a.Env) == "" {
		a.Env = defaultAppEnv
	}
	if strings.TrimSpace(a.LogLevel) == "" {
		a.LogLevel = defaultAppLogLevel
	}
	if strings.TrimSpace(a.HTTPAddr) == "" {
		a.HTTPAddr = defaultAppHTTPAddr
	}
	if strings.TrimSpace(a.LogDir) == "" {
		a.LogDir = defaultAppLogDir
	}
	if strings.TrimSpace(a.DataDir) == "" {
		a.DataDir = defaultAppDataDir
	}
	if strings.TrimSpace(a.DecisionLogPath) == "" {
		a.DecisionLogPath = defaultDecisionLogPath
	}
}

func (e *ExchangeConfig) applyDefaults() {
	if strings.TrimSpace(e.RESTBaseURL) == "" {
		e.RESTBaseURL = defaultExchangeREST
	}
	if e.TimeoutSeconds <= 0 {
		e.TimeoutSeconds = defaultExchangeTimeout
	}
	e.Proxy.RESTURL = strings.TrimSpace(e.Proxy.RESTURL)
	e.Proxy.WSURL = strings.TrimSpace(e.Proxy.WSURL)
}

func (a *AdvisorConfig) applyDefaults() {
	if strings.TrimSpace(a.Model) == "" {
		a.Model = defaultAdvisorModel
	}
	if a.TimeoutSeconds <= 0 {
		a.TimeoutSeconds = defaultAdvisorTimeout
	}
}
