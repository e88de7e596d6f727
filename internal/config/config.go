// internal/config/config.go
// Package config 集中管理运行参数，全部字段可选并带默认值
package config

import (
	"os"

	"backend/internal/types"

	"gopkg.in/yaml.v3"
)

// TemperatureConfig 温控模型参数
type TemperatureConfig struct {
	DefaultTarget        float64    `yaml:"default_target"`
	MidDeltaPerMin       float64    `yaml:"mid_delta_per_min"`
	HighMultiplier       float64    `yaml:"high_multiplier"`
	LowMultiplier        float64    `yaml:"low_multiplier"`
	IdleDriftPerMin      float64    `yaml:"idle_drift_per_min"`
	AutoRestartThreshold float64    `yaml:"auto_restart_threshold"`
	CoolRange            []float64  `yaml:"cool_range"`
	HeatRange            []float64  `yaml:"heat_range"`
}

// SchedulingConfig 调度参数
type SchedulingConfig struct {
	MaxConcurrent    int `yaml:"max_concurrent"`
	TimeSliceSeconds int `yaml:"time_slice_seconds"`
}

// ThrottleConfig 调温节流参数
type ThrottleConfig struct {
	ChangeTempMs int `yaml:"change_temp_ms"`
}

// BillingConfig 计费参数
type BillingConfig struct {
	PricePerUnit       float64 `yaml:"price_per_unit"`
	RateHighUnitPerMin float64 `yaml:"rate_high_unit_per_min"`
	RateMidUnitPerMin  float64 `yaml:"rate_mid_unit_per_min"`
	RateLowUnitPerMin  float64 `yaml:"rate_low_unit_per_min"`
}

// AccommodationConfig 住宿参数
type AccommodationConfig struct {
	RatePerNight float64 `yaml:"rate_per_night"`
}

// ClockConfig 逻辑时钟参数，Ratio 为逻辑时间相对墙钟的倍率
type ClockConfig struct {
	Ratio float64 `yaml:"ratio"`
}

// ServerConfig 对外服务参数（协作面，非核心）
type ServerConfig struct {
	Port     int    `yaml:"port"`
	LogLevel string `yaml:"log_level"`
	DBPath   string `yaml:"db_path"`
}

// Config 全量配置
type Config struct {
	Temperature   TemperatureConfig   `yaml:"temperature"`
	Scheduling    SchedulingConfig    `yaml:"scheduling"`
	Throttle      ThrottleConfig      `yaml:"throttle"`
	Billing       BillingConfig       `yaml:"billing"`
	Accommodation AccommodationConfig `yaml:"accommodation"`
	Clock         ClockConfig         `yaml:"clock"`
	Server        ServerConfig        `yaml:"server"`
}

// Default 返回带全部默认值的配置
func Default() *Config {
	return &Config{
		Temperature: TemperatureConfig{
			DefaultTarget:        25.0,
			MidDeltaPerMin:       0.5,
			HighMultiplier:       1.2,
			LowMultiplier:        0.8,
			IdleDriftPerMin:      0.5,
			AutoRestartThreshold: 1.0,
			CoolRange:            []float64{18, 25},
			HeatRange:            []float64{25, 30},
		},
		Scheduling: SchedulingConfig{
			MaxConcurrent:    3,
			TimeSliceSeconds: 60,
		},
		Throttle: ThrottleConfig{
			ChangeTempMs: 1000,
		},
		Billing: BillingConfig{
			PricePerUnit:       1.0,
			RateHighUnitPerMin: 1.0,
			RateMidUnitPerMin:  0.5,
			RateLowUnitPerMin:  1.0 / 3.0,
		},
		Accommodation: AccommodationConfig{
			RatePerNight: 300.0,
		},
		Clock: ClockConfig{
			Ratio: 1.0,
		},
		Server: ServerConfig{
			Port:     8080,
			LogLevel: "info",
			DBPath:   "hotel.db",
		},
	}
}

// Load 读取 YAML 配置文件并覆盖默认值，文件不存在时直接用默认值
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, types.WrapTransient("读取配置文件失败", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, types.InvalidArgumentf("配置文件解析失败: %v", err)
	}
	cfg.normalize()
	return cfg, nil
}

// normalize 纠正越界或缺失的配置项
func (c *Config) normalize() {
	if c.Scheduling.MaxConcurrent <= 0 {
		c.Scheduling.MaxConcurrent = 3
	}
	if c.Scheduling.TimeSliceSeconds <= 0 {
		c.Scheduling.TimeSliceSeconds = 60
	}
	if c.Throttle.ChangeTempMs < 0 {
		c.Throttle.ChangeTempMs = 1000
	}
	if c.Clock.Ratio <= 0 {
		c.Clock.Ratio = 1.0
	}
	if len(c.Temperature.CoolRange) != 2 {
		c.Temperature.CoolRange = []float64{18, 25}
	}
	if len(c.Temperature.HeatRange) != 2 {
		c.Temperature.HeatRange = []float64{25, 30}
	}
}

// RateForSpeed 返回某风速的每分钟耗电量，未知风速按中风
func (c *Config) RateForSpeed(speed types.Speed) float64 {
	switch speed {
	case types.SpeedHigh:
		return c.Billing.RateHighUnitPerMin
	case types.SpeedLow:
		return c.Billing.RateLowUnitPerMin
	}
	return c.Billing.RateMidUnitPerMin
}

// RangeForMode 返回某模式允许的目标温度区间
func (c *Config) RangeForMode(mode types.Mode) types.TempRange {
	if mode == types.ModeHeat {
		return types.TempRange{Min: c.Temperature.HeatRange[0], Max: c.Temperature.HeatRange[1]}
	}
	return types.TempRange{Min: c.Temperature.CoolRange[0], Max: c.Temperature.CoolRange[1]}
}
