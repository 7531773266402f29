package iclock

import (
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"punchd/internal/logs"
	"punchd/internal/models"
	"punchd/internal/punch"

	"github.com/gorilla/mux"
)

/*
ADMS-совместимые ручки для терминалов (ZKTeco K60 и родня):

	GET/POST /iclock/cdata       push логов и registry/options
	GET/POST /iclock/getrequest  poll команд
	GET/POST /iclock/devicecmd   отчёт о выполнении команды
	*        /iclock/...         catch-all: терминалу никогда не отвечаем 404

Ответ терминалу всегда 200 text/plain. Прошивки не умеют реагировать на коды
ошибок, поэтому любые сбои остаются в логах сервера, а на провод уходит "OK".
*/

// ackToken — короткий токен успеха протокола.
const ackToken = "OK"

// recentCap — сколько последних событий держим в памяти для /api/v1/logs.
// Это не система записи: после рестарта буфер пуст, и это нормально.
const recentCap = 200

// traceCap — сколько catch-all запросов держим для отладки прошивок.
const traceCap = 50

// RequestTrace — снимок запроса терминала, попавшего в catch-all:
// по таким видно, какими кривыми путями ходит конкретная прошивка.
type RequestTrace struct {
	Time        time.Time `json:"time"`
	Method      string    `json:"method"`
	Path        string    `json:"path"`
	SN          string    `json:"sn"`
	Table       string    `json:"table"`
	C           string    `json:"c"`
	BodyLength  int       `json:"body_length"`
	BodyPreview string    `json:"body_preview"` // первые 500 байт
}

// AttendanceStore — контракт хранилища, которое ядро видит как сток записей
// и источник конфигурации классификации.
type AttendanceStore interface {
	AppendPunch(models.PunchLog) error
	AutoClassifyEnabled() bool
	ActiveWindows() []punch.Window
}

// DeviceSink — опциональная досыпка реестра в БД (переживает рестарт).
type DeviceSink interface {
	UpsertBySN(models.Device) error
}

type Controller struct {
	reg     *Registry
	store   AttendanceStore
	devices DeviceSink // может быть nil (in-memory режим)
	tz      *time.Location
	now     func() time.Time

	recentMu sync.Mutex
	recent   []models.PunchLog

	traceMu sync.Mutex
	traces  []RequestTrace
}

func NewController(reg *Registry, store AttendanceStore, tz *time.Location) *Controller {
	if tz == nil {
		tz = time.UTC
	}
	return &Controller{reg: reg, store: store, tz: tz, now: time.Now}
}

func NewControllerWithSink(reg *Registry, store AttendanceStore, sink DeviceSink, tz *time.Location) *Controller {
	c := NewController(reg, store, tz)
	c.devices = sink
	return c
}

// ─────────────────────────── routes ───────────────────────────

func RegisterRoutes(root *mux.Router, c *Controller) {
	sub := root.PathPrefix("/iclock").Subrouter()

	sub.HandleFunc("/cdata", c.handleCData).Methods(http.MethodGet, http.MethodPost)
	sub.HandleFunc("/getrequest", c.handleGetRequest).Methods(http.MethodGet, http.MethodPost)
	sub.HandleFunc("/devicecmd", c.handleDeviceCmd).Methods(http.MethodGet, http.MethodPost)

	// catch-all ДОЛЖЕН быть последним: кривые пути вида
	// /iclock/cdata/iclock/getrequest — реальность вендорских прошивок
	sub.PathPrefix("/").HandlerFunc(c.handleCatchAll)
}

// ─────────────────────────── table dispatch ───────────────────────────

type tableKind int

const (
	tableNone tableKind = iota
	tableAttLog
	tableOperLog
	tableUser
	tableOptions
	tableFirstData
	tableOther
)

func tableKindOf(s string) tableKind {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "":
		return tableNone
	case "ATTLOG":
		return tableAttLog
	case "OPERLOG":
		return tableOperLog
	case "USER":
		return tableUser
	case "OPTIONS":
		return tableOptions
	case "FIRSTDATA":
		return tableFirstData
	default:
		return tableOther
	}
}

// ─────────────────────────── handlers ───────────────────────────

func (c *Controller) handleCData(w http.ResponseWriter, r *http.Request) {
	sn, table, cmd := deviceParams(r)
	c.touch(sn, table, cmd)

	log := logs.Logger.WithFields(map[string]any{"sn": sn, "table": table, "c": cmd})

	if cmd == "registry" {
		log.Info("device registered")
		c.ack(w)
		return
	}

	switch tableKindOf(table) {
	case tableAttLog:
		body := readBody(r)
		stored, failed := c.ingest(sn, body)
		log.WithFields(map[string]any{"stored": stored, "failed": failed}).Info("attlog batch")
		c.ack(w)

	case tableOperLog:
		for _, line := range nonBlankLines(readBody(r)) {
			log.WithField("line", line).Debug("operlog")
		}
		c.ack(w)

	case tableUser:
		for _, line := range nonBlankLines(readBody(r)) {
			log.WithField("user", ParseUserLine(line)).Debug("user sync")
		}
		c.ack(w)

	case tableOptions:
		// синхронизация часов терминала: только живое время, никакого кэша
		now := c.now().In(c.tz)
		resp := fmt.Sprintf("GET OPTION FROM: %s\r\nServerTime=%s\r\nStamp=0",
			sn, now.Format("2006-01-02 15:04:05"))
		log.WithField("server_time", now.Format("2006-01-02 15:04:05")).Info("options sync")
		c.plain(w, resp)

	case tableFirstData, tableOther, tableNone:
		if b := readBody(r); b != "" {
			log.WithField("bytes", len(b)).Debug("unhandled table payload")
		}
		c.ack(w)
	}
}

func (c *Controller) handleGetRequest(w http.ResponseWriter, r *http.Request) {
	sn, table, cmd := deviceParams(r)
	c.touch(sn, table, cmd)
	c.servePoll(w, sn)
}

func (c *Controller) handleDeviceCmd(w http.ResponseWriter, r *http.Request) {
	sn, table, cmd := deviceParams(r)
	c.touch(sn, table, cmd)
	// результат не коррелируем с исходной командой, только логируем
	logs.Logger.WithFields(map[string]any{"sn": sn, "result": readBody(r)}).Info("device command result")
	c.ack(w)
}

// handleCatchAll — страховка от вендорских причуд: регистрирует устройство,
// отдаёт команды по опросу и принимает ATTLOG даже с искалеченным путём.
func (c *Controller) handleCatchAll(w http.ResponseWriter, r *http.Request) {
	sn, table, cmd := deviceParams(r)
	c.touch(sn, table, cmd)

	body := readBody(r)
	c.trace(r, sn, table, cmd, body)

	logs.Logger.WithFields(map[string]any{
		"sn": sn, "table": table, "path": r.URL.Path,
	}).Info("iclock catch-all")

	if strings.Contains(strings.ToLower(r.URL.Path), "getrequest") {
		c.servePoll(w, sn)
		return
	}

	if tableKindOf(table) == tableAttLog && body != "" {
		stored, failed := c.ingest(sn, body)
		logs.Logger.WithFields(map[string]any{
			"sn": sn, "stored": stored, "failed": failed,
		}).Info("attlog batch (catch-all)")
	}
	c.ack(w)
}

func (c *Controller) servePoll(w http.ResponseWriter, sn string) {
	if cmd, ok := c.reg.Dequeue(sn); ok {
		logs.Logger.WithFields(map[string]any{"sn": sn, "command": cmd.Text}).Info("command sent")
		c.plain(w, cmd.Text) // ровно одна команда за опрос, текст как есть
		return
	}
	c.ack(w)
}

// ─────────────────────────── ingestion ───────────────────────────

// ingest — best effort построчно: кривая строка логируется и пропускается,
// соседи батча обрабатываются дальше. Порядок строк внутри батча сохраняется.
func (c *Controller) ingest(sn, body string) (stored, failed int) {
	for _, line := range nonBlankLines(body) {
		rec, err := ParseLogLine(line)
		if err != nil {
			failed++
			logs.Logger.WithFields(map[string]any{"sn": sn, "line": line}).Warnf("parse: %v", err)
			continue
		}
		// служебные строки прошивки, не события
		if rec.PIN == "" || rec.PIN == "OPLOG 0" {
			failed++
			continue
		}

		typ, src := punch.Classify(rec.DateTime, rec.Status,
			c.store.AutoClassifyEnabled(), c.store.ActiveWindows())

		ev := models.PunchLog{
			PIN:          rec.PIN,
			DeviceSN:     sn,
			PunchTime:    rec.DateTime,
			PunchType:    string(typ),
			Source:       string(src),
			DeviceType:   string(rec.DeviceSuggestedType()),
			VerifyMethod: rec.VerifyLabel,
			WorkCode:     rec.WorkCode,
			RawLine:      line,
			ReceivedAt:   c.now(),
		}

		if err := c.store.AppendPunch(ev); err != nil {
			// терминалу всё равно уйдёт OK: протокол не умеет частичный отказ
			failed++
			logs.Logger.WithFields(map[string]any{"sn": sn, "pin": rec.PIN}).Errorf("store punch: %v", err)
			continue
		}
		c.remember(ev)
		stored++
	}
	return stored, failed
}

func (c *Controller) remember(ev models.PunchLog) {
	c.recentMu.Lock()
	c.recent = append(c.recent, ev)
	if len(c.recent) > recentCap {
		c.recent = c.recent[len(c.recent)-recentCap:]
	}
	c.recentMu.Unlock()
}

func (c *Controller) trace(r *http.Request, sn, table, cmd, body string) {
	preview := body
	if len(preview) > 500 {
		preview = preview[:500]
	}
	c.traceMu.Lock()
	c.traces = append(c.traces, RequestTrace{
		Time:        c.now(),
		Method:      r.Method,
		Path:        r.URL.Path,
		SN:          sn,
		Table:       table,
		C:           cmd,
		BodyLength:  len(body),
		BodyPreview: preview,
	})
	if len(c.traces) > traceCap {
		c.traces = c.traces[len(c.traces)-traceCap:]
	}
	c.traceMu.Unlock()
}

// Traces — захваченные catch-all запросы, для операторской отладки.
func (c *Controller) Traces(limit int) []RequestTrace {
	c.traceMu.Lock()
	defer c.traceMu.Unlock()
	if limit <= 0 || limit > len(c.traces) {
		limit = len(c.traces)
	}
	out := make([]RequestTrace, limit)
	copy(out, c.traces[len(c.traces)-limit:])
	return out
}

// Recent — хвост последних событий для диагностики (не система записи).
func (c *Controller) Recent(limit int) []models.PunchLog {
	c.recentMu.Lock()
	defer c.recentMu.Unlock()
	if limit <= 0 || limit > len(c.recent) {
		limit = len(c.recent)
	}
	out := make([]models.PunchLog, limit)
	copy(out, c.recent[len(c.recent)-limit:])
	return out
}

// ─────────────────────────── helpers ───────────────────────────

func (c *Controller) touch(sn, table, cmd string) {
	if sn == "" || sn == UnknownSN {
		return
	}
	c.reg.Touch(sn, table, cmd)
	if c.devices != nil {
		if err := c.devices.UpsertBySN(models.Device{
			SerialNumber: sn,
			Status:       "online",
			LastSeen:     c.now(),
			LastTable:    table,
			LastCommand:  cmd,
		}); err != nil {
			logs.Logger.WithField("sn", sn).Warnf("persist device: %v", err)
		}
	}
}

func (c *Controller) ack(w http.ResponseWriter) { c.plain(w, ackToken) }

func (c *Controller) plain(w http.ResponseWriter, s string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, s)
}

func deviceParams(r *http.Request) (sn, table, cmd string) {
	q := r.URL.Query()
	sn = strings.TrimSpace(q.Get("SN"))
	if sn == "" {
		sn = UnknownSN
	}
	return sn, q.Get("table"), q.Get("c")
}

func readBody(r *http.Request) string {
	if r.Body == nil {
		return ""
	}
	b, err := io.ReadAll(r.Body)
	if err != nil {
		logs.Logger.Warnf("read body: %v", err)
		return ""
	}
	return strings.TrimSpace(string(b))
}

func nonBlankLines(body string) []string {
	if body == "" {
		return nil
	}
	raw := strings.Split(body, "\n")
	out := make([]string, 0, len(raw))
	for _, l := range raw {
		l = strings.TrimRight(l, "\r")
		if strings.TrimSpace(l) != "" {
			out = append(out, l)
		}
	}
	return out
}
