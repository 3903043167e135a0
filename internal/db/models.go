package db

import (
	"time"
)

// Document is one JSON document of the shared store, addressed by its path
// ("app-data/lists", "user-lists/{uid}", "tindecisos-sessions/{code}").
//
// Body holds the whole JSON object. Writes replace Body (Set) or merge
// top-level keys into it (Update); there is no version column, the last
// committed write wins.
type Document struct {
	Path      string    `gorm:"primaryKey;size:191"`
	Body      string    `gorm:"type:text;not null"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}

// Account is a sign-in identity. UID is the opaque user identifier handed to
// the session and list layers.
type Account struct {
	ID           uint64    `gorm:"primaryKey;autoIncrement"`
	UID          string    `gorm:"uniqueIndex;size:36;not null"`
	Email        string    `gorm:"uniqueIndex;size:128;not null"`
	PasswordHash string    `gorm:"size:255;not null"`
	Active       bool      `gorm:"default:true"`
	LastLoginAt  *time.Time
	CreatedAt    time.Time `gorm:"autoCreateTime"`
	UpdatedAt    time.Time `gorm:"autoUpdateTime"`
}
