package ecoflow

import (
	"strconv"
)

// Quota is a raw vendor payload: a flat JSON object with dotted keys like
// "2_1.utcTime". Values are accessed through typed helpers instead of
// direct assertions because the vendor is loose about types.
type Quota map[string]any

// String returns the value under key as a string. Numeric values are
// formatted, since the vendor reports some nominally-string fields as
// numbers.
func (q Quota) String(key string) (string, bool) {
	v, ok := q[key]
	if !ok || v == nil {
		return "", false
	}
	switch t := v.(type) {
	case string:
		return t, true
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	case bool:
		return strconv.FormatBool(t), true
	}
	return "", false
}

// Float returns the value under key as a float64.
func (q Quota) Float(key string) (float64, bool) {
	v, ok := q[key]
	if !ok || v == nil {
		return 0, false
	}
	switch t := v.(type) {
	case float64:
		return t, true
	case string:
		f, err := strconv.ParseFloat(t, 64)
		if err != nil {
			return 0, false
		}
		return f, true
	}
	return 0, false
}

// Int returns the value under key as an int.
func (q Quota) Int(key string) (int, bool) {
	f, ok := q.Float(key)
	if !ok {
		return 0, false
	}
	return int(f), true
}

// Bool returns the value under key as a bool. The vendor encodes some
// booleans as 0/1.
func (q Quota) Bool(key string) (bool, bool) {
	v, ok := q[key]
	if !ok || v == nil {
		return false, false
	}
	switch t := v.(type) {
	case bool:
		return t, true
	case float64:
		return t != 0, true
	}
	return false, false
}

// EpochSeconds returns the value under key as a Unix-seconds timestamp.
func (q Quota) EpochSeconds(key string) (int64, bool) {
	f, ok := q.Float(key)
	if !ok {
		return 0, false
	}
	return int64(f), true
}

// QuotaFields is the fixed field set this system consumes out of a quota
// snapshot. Pointer fields are nil when the vendor omitted the key or
// reported an unusable type.
type QuotaFields struct {
	UTCTime      string
	UpdateTime   string
	TimeZone     string
	Country      *string
	Town         *string
	SwitchStatus *int
	Freq         *float64
	Volt         *float64
	Current      *float64
	Watts        *float64
}

// ExtractQuotaFields pulls the known "2_1.*" keys out of a quota snapshot.
func ExtractQuotaFields(q Quota) QuotaFields {
	var f QuotaFields
	f.UTCTime, _ = q.String("2_1.utcTime")
	f.UpdateTime, _ = q.String("2_1.updateTime")
	f.TimeZone, _ = q.String("2_1.timeZone")
	f.Country = optString(q, "2_1.country")
	f.Town = optString(q, "2_1.town")
	f.SwitchStatus = optInt(q, "2_1.switchSta")
	f.Freq = optFloat(q, "2_1.freq")
	f.Volt = optFloat(q, "2_1.volt")
	f.Current = optFloat(q, "2_1.current")
	f.Watts = optFloat(q, "2_1.watts")
	return f
}

func optString(q Quota, key string) *string {
	if v, ok := q.String(key); ok {
		return &v
	}
	return nil
}

func optInt(q Quota, key string) *int {
	if v, ok := q.Int(key); ok {
		return &v
	}
	return nil
}

func optFloat(q Quota, key string) *float64 {
	if v, ok := q.Float(key); ok {
		return &v
	}
	return nil
}
