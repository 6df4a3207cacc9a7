package remote

import (
	"time"

	"gorm.io/datatypes"
)

type memberModel struct {
	ID         int64  `gorm:"primaryKey;autoIncrement"`
	No         int    `gorm:"uniqueIndex;not null"`
	Name       string `gorm:"not null"`
	Instrument string `gorm:"not null"`
}

func (memberModel) TableName() string { return "members" }

type attendanceModel struct {
	ID            int64     `gorm:"primaryKey;autoIncrement"`
	MemberID      int64     `gorm:"not null;uniqueIndex:uq_attendance_member_session"`
	SessionNumber int       `gorm:"not null;uniqueIndex:uq_attendance_member_session"`
	Status        string    `gorm:"not null"`
	UpdatedAt     time.Time `gorm:"autoUpdateTime:false"`
}

func (attendanceModel) TableName() string { return "attendance_records" }

type sheetMusicModel struct {
	ID         string `gorm:"primaryKey"`
	Title      string `gorm:"not null"`
	Composer   string
	Arranger   string
	Genre      string
	Difficulty string
	Notes      string
	Files      datatypes.JSON `gorm:"type:jsonb"`
}

func (sheetMusicModel) TableName() string { return "sheet_music" }

type practiceSongModel struct {
	ID          string `gorm:"primaryKey"`
	Title       string `gorm:"not null"`
	Composer    string
	Description string
	Difficulty  string
}

func (practiceSongModel) TableName() string { return "practice_songs" }

type sessionSongModel struct {
	SessionNumber  int    `gorm:"primaryKey;autoIncrement:false"`
	PracticeSongID string `gorm:"primaryKey"`
}

func (sessionSongModel) TableName() string { return "session_practice_songs" }

type storageObjectModel struct {
	Path        string `gorm:"primaryKey"`
	ContentType string
	Data        []byte
	CreatedAt   time.Time
}

func (storageObjectModel) TableName() string { return "storage_objects" }

// allModels lists every table for AutoMigrate.
var allModels = []any{
	&memberModel{},
	&attendanceModel{},
	&sheetMusicModel{},
	&practiceSongModel{},
	&sessionSongModel{},
	&storageObjectModel{},
}
