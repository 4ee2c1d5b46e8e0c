package merge

import (
	"strconv"

	"github.com/moznion/go-optional"

	"github.com/wlwd13303/panda-quantflow/pkg/api"
)

// accessor extracts one candidate value for a logical field from a raw
// record. Accessors are evaluated in priority order; the first present,
// non-nil value wins.
type accessor func(api.Record) (any, bool)

// key returns an accessor reading a single map key.
func key(name string) accessor {
	return func(rec api.Record) (any, bool) {
		v, ok := rec[name]
		if !ok || v == nil {
			return nil, false
		}

		return v, true
	}
}

// fieldList is the ordered alias table for one logical field.
type fieldList []accessor

// str resolves the field as a string, or "" when no alias is present.
func (f fieldList) str(rec api.Record) string {
	for _, get := range f {
		if v, ok := get(rec); ok {
			if s, ok := asString(v); ok {
				return s
			}
		}
	}

	return ""
}

// num resolves the field as a number, or 0 when no alias is present.
func (f fieldList) num(rec api.Record) float64 {
	for _, get := range f {
		if v, ok := get(rec); ok {
			if n, ok := asNumber(v); ok {
				return n
			}
		}
	}

	return 0
}

// intOpt resolves the field as an integer, distinguishing absent from zero.
func (f fieldList) intOpt(rec api.Record) optional.Option[int] {
	for _, get := range f {
		if v, ok := get(rec); ok {
			if n, ok := asNumber(v); ok {
				return optional.Some(int(n))
			}
		}
	}

	return optional.None[int]()
}

// The alias tables. Monitor-endpoint names and legacy detailed-endpoint names
// both appear; priority follows the original client's resolution order.
var (
	profitValueField = fieldList{key("total_value"), key("total_profit"), key("csi_stock"), key("strategy_profit")}
	profitDateField  = fieldList{key("gmt_create_time"), key("gmt_create"), key("date")}

	tradeDateField  = fieldList{key("trade_date"), key("gmt_create_time"), key("date")}
	tradeCodeField  = fieldList{key("contract_code"), key("code"), key("symbol")}
	tradeVolField   = fieldList{key("volume"), key("amount"), key("position")}
	tradePriceField = fieldList{key("price")}
	tradeCostField  = fieldList{key("cost"), key("amount")}
	tradeSideField  = fieldList{key("side")}
	tradeDirField   = fieldList{key("direction")}

	positionCodeField = fieldList{key("contract_code"), key("code"), key("symbol")}
	positionVolField  = fieldList{key("position"), key("volume")}
	positionDateField = fieldList{key("date"), key("gmt_create")}
	positionMVField   = fieldList{key("market_value")}
	positionPnlField  = fieldList{key("profit")}
	positionRateField = fieldList{key("profit_rate")}

	accountDateField  = fieldList{key("gmt_create_time"), key("gmt_create"), key("date")}
	accountTotalField = fieldList{key("total_asset"), key("total_profit")}
	accountAvailField = fieldList{key("available"), key("available_funds")}
	accountMVField    = fieldList{key("market_value")}
)

func asString(v any) (string, bool) {
	switch s := v.(type) {
	case string:
		return s, s != ""
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64), true
	case int:
		return strconv.Itoa(s), true
	default:
		return "", false
	}
}

func asNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case string:
		parsed, err := strconv.ParseFloat(n, 64)
		if err != nil {
			return 0, false
		}

		return parsed, true
	default:
		return 0, false
	}
}
