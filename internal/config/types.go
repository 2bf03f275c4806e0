package config

// Config 是 perpfire 的应用层配置（进程环境）；交易参数在 data/config.json,
// 由引擎的状态存储管理, 不在这里。
type Config struct {
	App      AppConfig      `toml:"app"`
	Exchange ExchangeConfig `toml:"exchange"`
	Advisor  AdvisorConfig  `toml:"advisor"`
	Notify   NotifyConfig   `toml:"notify"`
}

type AppConfig struct {
	Env             string `toml:"env"`
	LogLevel        string `toml:"log_level"`
	HTTPAddr        string `toml:"http_addr"`
	LogDir          string `toml:"log_dir"`
	DataDir         string `toml:"data_dir"`
	Timezone        string `toml:"timezone"` // IANA 名称, 空 = 本机时区
	DecisionLogPath string `toml:"decision_log_path"`
	WatchlistPath   string `toml:"watchlist_path"`
}

type ExchangeConfig struct {
	RESTBaseURL    string      `toml:"rest_base_url"`
	TimeoutSeconds int         `toml:"timeout_seconds"`
	Proxy          ProxyConfig `toml:"proxy"`

	// 凭证仅来自环境变量, 不落配置文件
	APIKey    string `toml:"-"`
	APISecret string `toml:"-"`
}

type ProxyConfig struct {
	Enabled bool   `toml:"enabled"`
	RESTURL string `toml:"rest_url"`
	WSURL   string `toml:"ws_url"`
}

type AdvisorConfig struct {
	Model          string `toml:"model"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
	DumpPayload    bool   `toml:"dump_payload"`

	// 服务地址与密钥仅来自环境变量
	APIURL string `toml:"-"`
	APIKey string `toml:"-"`
}

type NotifyConfig struct {
	Telegram TelegramConfig `toml:"telegram"`
}

type TelegramConfig struct {
	Enabled  bool   `toml:"enabled"`
	BotToken string `toml:"bot_token"`
	ChatID   string `toml:"chat_id"`
}
