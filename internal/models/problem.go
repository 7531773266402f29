package models

import (
	"encoding/json"
	"net/http"
)

// Problem — единый формат ошибок админ-API (по мотивам RFC 7807).
// Терминальные ручки им не пользуются: терминалу всегда отвечаем 200/OK.
type Problem struct {
	Title  string            `json:"title"`
	Detail string            `json:"detail,omitempty"`
	Status int               `json:"status"`
	Extra  map[string]string `json:"extra,omitempty"`
}

func WriteProblem(w http.ResponseWriter, status int, title, detail string, extra map[string]string) {
	w.Header().Set("Content-Type", "application/problem+json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(Problem{Title: title, Detail: detail, Status: status, Extra: extra})
}
