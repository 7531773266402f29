package iclock

import (
	"fmt"
	"strings"

	"punchd/internal/punch"
)

// Разбор строк ADMS-протокола. Два под-формата на одном проводе:
//
//	позиционный (K60): PIN\tDateTime\tStatus\tVerified[\tWorkCode\t...]
//	key=value:         PIN=1001\tDateTime=2025-09-02 14:32:11\tVerified=1\tStatus=0
//
// Признак формата — наличие '=' где угодно в строке.

// LogRecord — распознанная строка ATTLOG.
type LogRecord struct {
	PIN         string
	DateTime    string // локальные часы терминала
	Status      string
	Verified    string
	WorkCode    string
	VerifyLabel string            // человекочитаемый способ верификации
	Extra       map[string]string // незнакомые ключи key=value формата, как есть
}

var verifyLabels = map[string]string{
	"0":  "PASSWORD",
	"1":  "FINGERPRINT",
	"2":  "CARD",
	"3":  "CARD",
	"4":  "FACE",
	"15": "PALM",
}

// VerifyLabel — метка способа верификации; незнакомый код не отбрасываем.
func VerifyLabel(code string) string {
	if code == "" {
		return ""
	}
	if l, ok := verifyLabels[code]; ok {
		return l
	}
	return fmt.Sprintf("UNKNOWN(%s)", code)
}

// ParseLogLine — чистая функция над одной строкой; ошибка касается только
// этой строки и не должна прерывать обработку остального батча.
func ParseLogLine(line string) (LogRecord, error) {
	rec := LogRecord{}
	parts := strings.Split(line, "\t")

	if strings.Contains(line, "=") {
		for _, part := range parts {
			k, v, ok := strings.Cut(part, "=")
			if !ok {
				continue
			}
			k, v = strings.TrimSpace(k), strings.TrimSpace(v)
			switch k {
			case "PIN":
				rec.PIN = v
			case "DateTime":
				rec.DateTime = v
			case "Status":
				rec.Status = v
			case "Verified":
				rec.Verified = v
			case "WorkCode":
				rec.WorkCode = v
			default:
				if rec.Extra == nil {
					rec.Extra = map[string]string{}
				}
				rec.Extra[k] = v // форвард-совместимость: прошивки шлют новые ключи
			}
		}
	} else {
		if len(parts) < 4 {
			return rec, fmt.Errorf("attlog line: want >=4 tab fields, got %d", len(parts))
		}
		rec.PIN = strings.TrimSpace(parts[0])
		rec.DateTime = strings.TrimSpace(parts[1])
		rec.Status = strings.TrimSpace(parts[2])
		rec.Verified = strings.TrimSpace(parts[3])
		if len(parts) > 4 {
			rec.WorkCode = strings.TrimSpace(parts[4])
		}
	}

	rec.VerifyLabel = VerifyLabel(rec.Verified)
	return rec, nil
}

// DeviceSuggestedType — что терминал сам думает об этом событии.
func (r LogRecord) DeviceSuggestedType() punch.Type {
	return punch.TypeFromStatus(r.Status)
}

// ParseUserLine — строка таблицы USER (только key=value), идёт в диагностику.
// Privilege: 0=USER, 14=ADMIN.
func ParseUserLine(line string) map[string]string {
	data := map[string]string{}
	for _, part := range strings.Split(line, "\t") {
		if k, v, ok := strings.Cut(part, "="); ok {
			data[strings.TrimSpace(k)] = strings.TrimSpace(v)
		}
	}
	if p, ok := data["Privilege"]; ok {
		switch p {
		case "0":
			data["privilege_name"] = "USER"
		case "14":
			data["privilege_name"] = "ADMIN"
		default:
			data["privilege_name"] = fmt.Sprintf("UNKNOWN(%s)", p)
		}
	}
	return data
}
