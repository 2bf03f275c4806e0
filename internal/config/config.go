package config

import (
	"fmt"
	"os"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// 凭证只认环境变量（§安全约定）, 配置文件里不出现。
const (
	EnvExchangeKey    = "BINANCE_API_KEY"
	EnvExchangeSecret = "BINANCE_API_SECRET"
	EnvAdvisorURL     = "ADVISOR_API_URL"
	EnvAdvisorKey     = "ADVISOR_API_KEY"
)

func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	var cfg Config
	if err := v.ReadInConfig(); err != nil {
		if os.IsNotExist(err) || isNotFound(err) {
			// 没有配置文件时全部走默认值, 仍可跑起来
		} else {
			return nil, fmt.Errorf("reading config file failed (%s): %w", path, err)
		}
	} else if err := v.Unmarshal(&cfg, func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "toml"
		dc.WeaklyTypedInput = true
	}); err != nil {
		return nil, fmt.Errorf("parsing config failed: %w", err)
	}

	cfg.applyDefaults()
	cfg.Exchange.APIKey = os.Getenv(EnvExchangeKey)
	cfg.Exchange.APISecret = os.Getenv(EnvExchangeSecret)
	cfg.Advisor.APIURL = os.Getenv(EnvAdvisorURL)
	cfg.Advisor.APIKey = os.Getenv(EnvAdvisorKey)

	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func isNotFound(err error) bool {
	_, ok := err.(viper.ConfigFileNotFoundError)
	return ok
}

// Location 解析配置时区；空值回退本机时区。日重置与强平窗口都用它。
func (c *Config) Location() (*time.Location, error) {
	if c.App.Timezone == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.App.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid app.timezone %q: %w", c.App.Timezone, err)
	}
	return loc, nil
}
