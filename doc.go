// Package edutrack implements the backend for a small student-management
// service: signup with email verification, JWT login, password recovery and
// role-gated student administration over a bun-backed user store.
package edutrack
