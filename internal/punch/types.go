package punch

import "fmt"

// Type — семантический тип события (что это было: приход, уход, перерыв...).
type Type string

const (
	CheckIn     Type = "CHECK_IN"
	CheckOut    Type = "CHECK_OUT"
	BreakOut    Type = "BREAK_OUT"
	BreakIn     Type = "BREAK_IN"
	OvertimeIn  Type = "OVERTIME_IN"
	OvertimeOut Type = "OVERTIME_OUT"
)

// Provenance — чем определён итоговый тип: окном времени или статусом терминала.
type Provenance string

const (
	ByTimeWindow   Provenance = "TIME_WINDOW"
	ByDeviceStatus Provenance = "DEVICE_STATUS"
)

// ValidTypes — допустимые значения для админ-CRUD окон.
var ValidTypes = []Type{CheckIn, CheckOut, BreakOut, BreakIn, OvertimeIn, OvertimeOut}

func IsValidType(s string) bool {
	for _, t := range ValidTypes {
		if string(t) == s {
			return true
		}
	}
	return false
}

var statusToType = map[string]Type{
	"0": CheckIn,
	"1": CheckOut,
	"2": BreakOut,
	"3": BreakIn,
	"4": OvertimeIn,
	"5": OvertimeOut,
}

// TypeFromStatus — тип, который предлагает сам терминал своим кодом Status.
// Пустой код трактуем как приход (так ведут себя K60 без настройки статусов),
// незнакомый код не теряем, а помечаем явно.
func TypeFromStatus(code string) Type {
	if code == "" {
		return CheckIn
	}
	if t, ok := statusToType[code]; ok {
		return t
	}
	return Type(fmt.Sprintf("UNKNOWN(%s)", code))
}
