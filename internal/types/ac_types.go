// internal/types/ac_types.go

package types

// Mode 空调工作模式
type Mode string

const (
	ModeCool Mode = "cool"
	ModeHeat Mode = "heat"
)

// Speed 风速档位
type Speed string

const (
	SpeedLow  Speed = "LOW"
	SpeedMid  Speed = "MID"
	SpeedHigh Speed = "HIGH"
)

// SpeedPriority 风速优先级映射，高风抢占低风
var SpeedPriority = map[Speed]int{
	SpeedLow:  1,
	SpeedMid:  2,
	SpeedHigh: 3,
}

// ParseSpeed 解析风速字符串，非法值返回 InvalidArgument 错误
func ParseSpeed(s string) (Speed, error) {
	switch Speed(s) {
	case SpeedLow, SpeedMid, SpeedHigh:
		return Speed(s), nil
	}
	return "", InvalidArgumentf("非法风速: %q (允许 HIGH/MID/LOW)", s)
}

// ParseMode 解析工作模式，非法值返回 InvalidArgument 错误
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeCool, ModeHeat:
		return Mode(s), nil
	}
	return "", InvalidArgumentf("非法工作模式: %q (允许 cool/heat)", s)
}

// ComparePriority 比较两个风速优先级，a 高于 b 返回正数
func ComparePriority(a, b Speed) int {
	return SpeedPriority[a] - SpeedPriority[b]
}

// TempRange 某一模式下允许的目标温度区间
type TempRange struct {
	Min float64
	Max float64
}

// Contains 判断目标温度是否落在区间内（闭区间）
func (r TempRange) Contains(t float64) bool {
	return t >= r.Min && t <= r.Max
}
