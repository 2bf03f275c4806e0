package types

// BotConfig 是持久化在 data/config.json 里的交易配置，可被运营端 PATCH。
// 字段含义见 SPEC_FULL.md；零值不直接使用，缺省由 DefaultBotConfig 提供。
type BotConfig struct {
	Symbols []string `json:"symbols"`

	Leverage        int                   `json:"leverage"`
	DynamicLeverage DynamicLeverageConfig `json:"dynamicLeverage"`

	MaxRiskPercentage     float64 `json:"maxRiskPercentage"`
	StopLossATRMultiplier float64 `json:"stopLossATRMultiplier"`
	MaxStopLossPercentage float64 `json:"maxStopLossPercentage"`
	PositionTimeoutHours  float64 `json:"positionTimeoutHours"`
	MinEquity             float64 `json:"minEquity"`

	ScanInterval          int `json:"scanInterval"`
	PositionScanInterval  int `json:"positionScanInterval"`
	TradeCooldownInterval int `json:"tradeCooldownInterval"`

	RiskConfig       RiskConfig       `json:"riskConfig"`
	AIConfig         AIConfig         `json:"aiConfig"`
	TrailingStop     TrailingConfig   `json:"trailingStop"`
	IndicatorsConfig IndicatorsConfig `json:"indicatorsConfig"`
}

type DynamicLeverageConfig struct {
	Enabled        bool               `json:"enabled"`
	Min            int                `json:"min"`
	Max            int                `json:"max"`
	Base           int                `json:"base"`
	RiskMultiplier map[string]float64 `json:"riskMultiplier"` // LOW/MEDIUM/HIGH
}

type RiskConfig struct {
	CircuitBreaker    CircuitBreakerConfig `json:"circuitBreaker"`
	ForceLiquidate    ClockConfig          `json:"forceLiquidateTime"`
	TakeProfit        TakeProfitConfig     `json:"takeProfit"`
	DailyTradeLimit   int                  `json:"dailyTradeLimit"`
}

type CircuitBreakerConfig struct {
	DailyLossThreshold         float64 `json:"dailyLossThreshold"` // 占权益百分比
	ConsecutiveLossesThreshold int     `json:"consecutiveLossesThreshold"`
}

type ClockConfig struct {
	Hour   int `json:"hour"`
	Minute int `json:"minute"`
}

type TakeProfitConfig struct {
	TP1RR                float64        `json:"tp1RR"`
	TP2RR                float64        `json:"tp2RR"`
	RSIExtreme           RSIExtremeConf `json:"rsiExtreme"`
	ADXDecreaseThreshold float64        `json:"adxDecreaseThreshold"`
}

type RSIExtremeConf struct {
	Long  float64 `json:"long"`
	Short float64 `json:"short"`
}

type AIConfig struct {
	Enabled              bool      `json:"enabled"`
	MinConfidence        int       `json:"minConfidence"`
	MaxRiskLevel         RiskLevel `json:"maxRiskLevel"`
	UseForEntry          bool      `json:"useForEntry"`
	UseForExit           bool      `json:"useForExit"`
	CacheDurationMinutes int       `json:"cacheDurationMinutes"`
	WeightAdjustment     bool      `json:"weightAdjustment"`
}

type TrailingConfig struct {
	Enabled                bool    `json:"enabled"`
	ActivationRatio        float64 `json:"activationRatio"`
	TrailingDistanceATRMul float64 `json:"trailingDistanceATRMult"`
	UpdateIntervalSeconds  int     `json:"updateIntervalSeconds"`
}

type IndicatorsConfig struct {
	ADX1HThreshold  float64          `json:"adx1hThreshold"`
	ADX4HThreshold  float64          `json:"adx4hThreshold"`
	ADX15MThreshold float64          `json:"adx15mThreshold"`
	Long            EntryGateConfig  `json:"long"`
	Short           EntryGateConfig  `json:"short"`
	Volume          VolumeGateConfig `json:"volumeConfirmation"`
}

type EntryGateConfig struct {
	EMADeviationThreshold float64 `json:"emaDeviationThreshold"`
	RSIMin                float64 `json:"rsiMin"`
	RSIMax                float64 `json:"rsiMax"`
	CandleShadowThreshold float64 `json:"candleShadowThreshold"`
}

type VolumeGateConfig struct {
	Enabled       bool    `json:"enabled"`
	EMAPeriod     int     `json:"emaPeriod"`
	EMAMultiplier float64 `json:"emaMultiplier"`
}

// DefaultBotConfig 首次启动时落盘的缺省配置。
func DefaultBotConfig() BotConfig {
	return BotConfig{
		Symbols:  []string{"BTC/USDT", "ETH/USDT"},
		Leverage: 10,
		DynamicLeverage: DynamicLeverageConfig{
			Enabled: true,
			Min:     3,
			Max:     20,
			Base:    10,
			RiskMultiplier: map[string]float64{
				string(RiskLow):    1.2,
				string(RiskMedium): 1.0,
				string(RiskHigh):   0.7,
			},
		},
		MaxRiskPercentage:     1.0,
		StopLossATRMultiplier: 1.5,
		MaxStopLossPercentage: 2.0,
		PositionTimeoutHours:  8,
		MinEquity:             120,
		ScanInterval:          60,
		PositionScanInterval:  15,
		TradeCooldownInterval: 300,
		RiskConfig: RiskConfig{
			CircuitBreaker: CircuitBreakerConfig{
				DailyLossThreshold:         5.0,
				ConsecutiveLossesThreshold: 3,
			},
			ForceLiquidate: ClockConfig{Hour: 23, Minute: 30},
			TakeProfit: TakeProfitConfig{
				TP1RR:                1.0,
				TP2RR:                2.0,
				RSIExtreme:           RSIExtremeConf{Long: 78, Short: 22},
				ADXDecreaseThreshold: 6.0,
			},
			DailyTradeLimit: 6,
		},
		AIConfig: AIConfig{
			Enabled:              false,
			MinConfidence:        60,
			MaxRiskLevel:         RiskMedium,
			UseForEntry:          true,
			UseForExit:           false,
			CacheDurationMinutes: 10,
			WeightAdjustment:     false,
		},
		TrailingStop: TrailingConfig{
			Enabled:                true,
			ActivationRatio:        1.0,
			TrailingDistanceATRMul: 1.0,
			UpdateIntervalSeconds:  60,
		},
		IndicatorsConfig: IndicatorsConfig{
			ADX1HThreshold:  25,
			ADX4HThreshold:  25,
			ADX15MThreshold: 20,
			Long: EntryGateConfig{
				EMADeviationThreshold: 0.003,
				RSIMin:                40,
				RSIMax:                68,
				CandleShadowThreshold: 0.001,
			},
			Short: EntryGateConfig{
				EMADeviationThreshold: 0.003,
				RSIMin:                32,
				RSIMax:                60,
				CandleShadowThreshold: 0.001,
			},
			Volume: VolumeGateConfig{
				Enabled:       false,
				EMAPeriod:     20,
				EMAMultiplier: 1.2,
			},
		},
	}
}
