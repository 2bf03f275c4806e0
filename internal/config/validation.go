package config

import (
	"fmt"
	"strings"
)

// validate 对应用配置做基础校验。
func validate(c *Config) error {
	if err := c.Exchange.validate(); err != nil {
		return err
	}
	if err := c.Notify.validate(); err != nil {
		return err
	}
	return nil
}

func (e *ExchangeConfig) validate() error {
	if !strings.HasPrefix(e.RESTBaseURL, "http") {
		return fmt.Errorf("exchange.rest_base_url 非法: %s", e.RESTBaseURL)
	}
	if e.Proxy.Enabled && e.Proxy.RESTURL == "" && e.Proxy.WSURL == "" {
		return fmt.Errorf("exchange.proxy 开启但未提供任何代理地址")
	}
	return nil
}

func (n *NotifyConfig) validate() error {
	t := n.Telegram
	if !t.Enabled {
		return nil
	}
	if strings.TrimSpace(t.BotToken) == "" || strings.TrimSpace(t.ChatID) == "" {
		return fmt.Errorf("notify.telegram 开启时 bot_token 与 chat_id 必填")
	}
	return nil
}
