package storage

// Package storage provides the optional run-history layer.
//
// Every finished training job is appended as one RunRecord; the status API
// reads recent records back. This is observability history only: schedule
// state itself is rebuilt from config on every start.
