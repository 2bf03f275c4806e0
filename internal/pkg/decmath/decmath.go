package decmath

import (
	"math"

	"github.com/shopspring/decimal"
)

// 中文说明：
// 价格与资金的方向敏感比较/推导全部走 decimal，避免浮点误差把止损推错方向。
// side 取 "LONG" / "SHORT"。

var (
	decOne     = decimal.NewFromInt(1)
	decHundred = decimal.NewFromInt(100)
	decimalEps = decimal.NewFromFloat(1e-8)
)

func FromFloat(val float64) decimal.Decimal {
	if math.IsNaN(val) || math.IsInf(val, 0) {
		return decimal.Zero
	}
	return decimal.NewFromFloat(val)
}

func ToFloat(val decimal.Decimal) float64 {
	f, _ := val.Float64()
	return f
}

func isShort(side string) bool { return side == "SHORT" || side == "short" }

// StopFor 由入场价与止损距离推出止损价（LONG 在下方，SHORT 在上方）。
func StopFor(entry, distance decimal.Decimal, side string) decimal.Decimal {
	if isShort(side) {
		return entry.Add(distance)
	}
	return entry.Sub(distance)
}

// TargetFor 由入场价、单位风险与 RR 推出止盈目标。
func TargetFor(entry, risk decimal.Decimal, rr float64, side string) decimal.Decimal {
	dist := risk.Mul(FromFloat(rr))
	if isShort(side) {
		return entry.Sub(dist)
	}
	return entry.Add(dist)
}

// ShouldUpdateStop 判断候选止损是否严格优于当前止损（带 eps 抑制抖动）。
func ShouldUpdateStop(side string, candidate, current decimal.Decimal) bool {
	if candidate.Sign() <= 0 {
		return false
	}
	if current.Sign() <= 0 {
		return true
	}
	if isShort(side) {
		return candidate.Cmp(current.Sub(decimalEps)) < 0
	}
	return candidate.Cmp(current.Add(decimalEps)) > 0
}

// StopImproves 宽松版本：允许相等（用于不变式校验，P2 允许相等）。
func StopImproves(side string, next, prev decimal.Decimal) bool {
	if prev.Sign() <= 0 {
		return true
	}
	if isShort(side) {
		return next.Cmp(prev) <= 0
	}
	return next.Cmp(prev) >= 0
}

// TargetHit 判断价格是否触达止盈目标。
func TargetHit(side string, price, target decimal.Decimal) bool {
	if price.Sign() <= 0 || target.Sign() <= 0 {
		return false
	}
	if isShort(side) {
		return price.Cmp(target) <= 0
	}
	return price.Cmp(target) >= 0
}

// PriceBreachedStop 判断价格是否击穿止损。
func PriceBreachedStop(side string, price, stop decimal.Decimal) bool {
	if stop.Sign() <= 0 || price.Sign() <= 0 {
		return false
	}
	if isShort(side) {
		return price.Cmp(stop) >= 0
	}
	return price.Cmp(stop) <= 0
}

// PnL 计算已实现盈亏：(exit - entry) * qty * dirSign。
func PnL(entry, exit, qty decimal.Decimal, side string) decimal.Decimal {
	diff := exit.Sub(entry)
	if isShort(side) {
		diff = diff.Neg()
	}
	return diff.Mul(qty)
}

// PnLPercent 计算带杠杆的收益率（%）：pnl / (entry*qty) * 100 * leverage。
func PnLPercent(pnl, entry, qty decimal.Decimal, leverage int) decimal.Decimal {
	notional := entry.Mul(qty)
	if notional.Sign() == 0 {
		return decimal.Zero
	}
	return pnl.Div(notional).Mul(decHundred).Mul(decimal.NewFromInt(int64(leverage)))
}

// Profit 当前浮动收益（方向敏感，可为负）。
func Profit(entry, price decimal.Decimal, side string) decimal.Decimal {
	if isShort(side) {
		return entry.Sub(price)
	}
	return price.Sub(entry)
}

// QuantizeStep 把数量按交易所步进向下取整（步进<=0 时原样返回）。
func QuantizeStep(qty, step decimal.Decimal) decimal.Decimal {
	if step.Sign() <= 0 {
		return qty
	}
	return qty.Div(step).Floor().Mul(step)
}

// RelDeviation |a-b| / b。b 为 0 时返回一个大数，让调用方的阈值判断自然失败。
func RelDeviation(a, b decimal.Decimal) decimal.Decimal {
	if b.Sign() == 0 {
		return decHundred
	}
	return a.Sub(b).Abs().Div(b.Abs())
}
