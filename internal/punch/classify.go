package punch

import (
	"sort"
	"strings"
	"time"
)

// Window — активное правило сопоставления времени суток типу события.
// Границы включительные; Start > End означает окно через полночь (22:00-06:00).
type Window struct {
	Type     Type
	Start    string // HH:MM
	End      string // HH:MM
	Days     []int  // 0=Пн .. 6=Вс; пусто = все дни
	Priority int    // меньше = раньше; первый совпавший побеждает
	Active   bool
}

// Classify определяет итоговый тип события. rawDatetime — время терминала
// ("2025-12-02 15:54:20" или просто "15:54:20"), deviceStatus — код Status с
// провода. Если окна не дали ответа (или авторежим выключен), берём тип из
// статуса терминала.
func Classify(rawDatetime, deviceStatus string, autoEnabled bool, windows []Window) (Type, Provenance) {
	return classifyAt(rawDatetime, "", deviceStatus, autoEnabled, windows, time.Now())
}

// ClassifyForDate — то же, но с явной датой для проверки «а что было бы в
// субботу» (dry-run из админки).
func ClassifyForDate(rawDatetime, checkDate, deviceStatus string, autoEnabled bool, windows []Window) (Type, Provenance) {
	return classifyAt(rawDatetime, checkDate, deviceStatus, autoEnabled, windows, time.Now())
}

func classifyAt(raw, checkDate, deviceStatus string, autoEnabled bool, windows []Window, now time.Time) (Type, Provenance) {
	if !autoEnabled {
		return TypeFromStatus(deviceStatus), ByDeviceStatus
	}
	if t, ok := MatchWindows(raw, checkDate, windows, now); ok {
		return t, ByTimeWindow
	}
	return TypeFromStatus(deviceStatus), ByDeviceStatus
}

// MatchWindows — чистое сопоставление окнам; ok=false значит «нет ответа,
// решайте по статусу терминала». Ошибочная дата не фатальна: день недели
// берём от сервера (осознанный выбор: доступность важнее строгости).
func MatchWindows(raw, checkDate string, windows []Window, now time.Time) (Type, bool) {
	// мусор с провода: пусто, "0", куцая строка
	if raw == "" || raw == "0" || len(raw) < 5 {
		return "", false
	}

	dateStr, timeStr := splitDatetime(raw)
	if dateStr == "" {
		if checkDate != "" {
			dateStr = checkDate
		} else {
			dateStr = now.Format("2006-01-02")
		}
	}
	if !strings.Contains(timeStr, ":") {
		return "", false
	}

	dow := Weekday(dateStr, now)

	hhmm, ok := truncateHHMM(timeStr)
	if !ok {
		return "", false
	}

	// стабильный порядок: приоритет по возрастанию; хранилище обычно уже
	// сортирует, но на это не полагаемся
	ws := make([]Window, 0, len(windows))
	for _, w := range windows {
		if w.Active {
			ws = append(ws, w)
		}
	}
	sort.SliceStable(ws, func(i, j int) bool { return ws[i].Priority < ws[j].Priority })

	for _, w := range ws {
		if !dayApplies(w.Days, dow) {
			continue
		}
		if timeInWindow(hhmm, w.Start, w.End) {
			return w.Type, true
		}
	}
	return "", false
}

// Weekday — день недели даты "YYYY-MM-DD", 0=Пн .. 6=Вс.
// Нечитаемая дата = текущий день сервера.
func Weekday(dateStr string, now time.Time) int {
	d, err := time.Parse("2006-01-02", strings.TrimSpace(dateStr))
	if err != nil {
		d = now
	}
	// time.Weekday: Sunday=0; нам нужен Monday=0
	return (int(d.Weekday()) + 6) % 7
}

func splitDatetime(raw string) (date, tod string) {
	if i := strings.IndexByte(raw, ' '); i >= 0 {
		return raw[:i], raw[i+1:]
	}
	return "", raw
}

// truncateHHMM режет "15:54:20" до "15:54"; секунды для окон не важны.
func truncateHHMM(timeStr string) (string, bool) {
	parts := strings.Split(timeStr, ":")
	if len(parts) < 2 {
		return "", false
	}
	return parts[0] + ":" + parts[1], true
}

func dayApplies(days []int, dow int) bool {
	if len(days) == 0 {
		return true
	}
	for _, d := range days {
		if d == dow {
			return true
		}
	}
	return false
}

// timeInWindow — лексикографическое сравнение zero-padded HH:MM; для окна
// через полночь достаточно дизъюнкции вместо модульной арифметики.
func timeInWindow(t, start, end string) bool {
	if start <= end {
		return start <= t && t <= end
	}
	return t >= start || t <= end
}

// ParseDays разбирает "0,1,2,3,4" из БД; мусорные элементы пропускаются.
func ParseDays(s string) []int {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	out := make([]int, 0, 7)
	for _, p := range strings.Split(s, ",") {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		n := 0
		okDigit := true
		for _, r := range p {
			if r < '0' || r > '9' {
				okDigit = false
				break
			}
			n = n*10 + int(r-'0')
		}
		if okDigit && n >= 0 && n <= 6 {
			out = append(out, n)
		}
	}
	return out
}
