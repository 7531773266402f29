package adminapi

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"punchd/internal/models"
	"punchd/internal/punch"
)

// Дневная сводка по журналу: кто пришёл, кто опоздал, средние времена.
// Считаем по punch_time терминала (локальные часы устройства).

type dayTotals struct {
	checkIns  []string // HH:MM:SS
	checkOuts []string
}

func (h *HTTP) stats(w http.ResponseWriter, r *http.Request) {
	date := r.URL.Query().Get("date")
	if date == "" {
		date = time.Now().In(h.tz).Format("2006-01-02")
	}

	rows, err := h.store.PunchesForDate(date)
	if err != nil {
		models.WriteProblem(w, http.StatusInternalServerError, "Store error", err.Error(), nil)
		return
	}

	workStart := "09:00"
	if v, err := h.store.GetSetting("work_start_time"); err == nil && v != "" {
		workStart = v
	}

	perPIN := map[string]*dayTotals{}
	for _, row := range rows {
		t := perPIN[row.PIN]
		if t == nil {
			t = &dayTotals{}
			perPIN[row.PIN] = t
		}
		tod := timeOfDay(row.PunchTime)
		if tod == "" {
			continue
		}
		switch punch.Type(row.PunchType) {
		case punch.CheckIn:
			t.checkIns = append(t.checkIns, tod)
		case punch.CheckOut:
			t.checkOuts = append(t.checkOuts, tod)
		}
	}

	var (
		present, late  int
		totalMins      int
		arrivals, outs []string
	)
	for _, t := range perPIN {
		if len(t.checkIns) == 0 {
			continue
		}
		present++
		firstIn := minStr(t.checkIns)
		arrivals = append(arrivals, firstIn)
		if firstIn > workStart {
			late++
		}
		if len(t.checkOuts) > 0 {
			lastOut := maxStr(t.checkOuts)
			outs = append(outs, lastOut)
			// сводка дневная: ночная смена (уход раньше прихода в рамках
			// даты) в средние часы не входит
			if d := minutesOf(lastOut) - minutesOf(firstIn); d > 0 {
				totalMins += d
			}
		}
	}

	out := map[string]any{
		"date":            date,
		"total_employees": len(perPIN),
		"present":         present,
		"late":            late,
		"total_punches":   len(rows),
		"avg_arrival":     avgTime(arrivals),
		"avg_departure":   avgTime(outs),
	}
	if present > 0 {
		out["avg_hours"] = float64(totalMins) / float64(present) / 60
		out["on_time_rate"] = (present - late) * 100 / present
	} else {
		out["avg_hours"] = 0
		out["on_time_rate"] = 0
	}
	writeJSON(w, out)
}

func timeOfDay(punchTime string) string {
	if i := strings.IndexByte(punchTime, ' '); i >= 0 {
		return punchTime[i+1:]
	}
	return ""
}

func minutesOf(hhmm string) int {
	parts := strings.Split(hhmm, ":")
	if len(parts) < 2 {
		return 0
	}
	h, m := 0, 0
	fmt.Sscanf(parts[0], "%d", &h)
	fmt.Sscanf(parts[1], "%d", &m)
	return h*60 + m
}

func avgTime(times []string) string {
	if len(times) == 0 {
		return ""
	}
	total := 0
	for _, t := range times {
		total += minutesOf(t)
	}
	avg := total / len(times)
	return fmt.Sprintf("%02d:%02d", avg/60, avg%60)
}

func minStr(ss []string) string {
	out := ss[0]
	for _, s := range ss[1:] {
		if s < out {
			out = s
		}
	}
	return out
}

func maxStr(ss []string) string {
	out := ss[0]
	for _, s := range ss[1:] {
		if s > out {
			out = s
		}
	}
	return out
}
