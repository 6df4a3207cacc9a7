package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"chamber/internal/adapters/perf"
	"chamber/internal/domain/member"
	"chamber/internal/domain/practicesong"
	"chamber/internal/domain/sheetmusic"
)

// Options configures Open.
type Options struct {
	DSN           string
	SlowThreshold time.Duration
	// AutoMigrate creates missing tables on the first successful Ping.
	AutoMigrate bool
	Collector   *perf.Collector
}

// GormClient implements Client and BlobStore over a GORM connection.
type GormClient struct {
	db *gorm.DB

	migrateMu sync.Mutex
	migrate   bool // pending AutoMigrate, cleared once it succeeds
}

// Open prepares a client for the Postgres backend. No connection is made
// until the first query or Ping.
// PRE: opts.DSN is non-empty
// POST: returns a client or a DSN error; no connection is attempted
func Open(opts Options) (*GormClient, error) {
	if opts.DSN == "" {
		return nil, errors.New("remote DSN is empty")
	}
	db, err := gorm.Open(postgres.New(postgres.Config{
		DSN:                  opts.DSN,
		PreferSimpleProtocol: true,
	}), &gorm.Config{
		Logger:               NewSlogLogger(opts.SlowThreshold, opts.Collector),
		DisableAutomaticPing: true,
	})
	if err != nil {
		return nil, fmt.Errorf("open remote: %w", err)
	}
	client := NewGormClient(db)
	client.migrate = opts.AutoMigrate
	return client, nil
}

// NewGormClient wraps an existing GORM handle.
func NewGormClient(db *gorm.DB) *GormClient {
	return &GormClient{db: db}
}

// Close releases the underlying pool.
func (c *GormClient) Close() error {
	sqlDB, err := c.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (c *GormClient) Ping(ctx context.Context) error {
	sqlDB, err := c.db.DB()
	if err != nil {
		return &RequestError{Op: "ping", Err: err}
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return &RequestError{Op: "ping", Err: err}
	}
	return c.migrateOnce(ctx)
}

// migrateOnce runs the AutoMigrate requested at Open. A failure is retried
// on the next Ping.
func (c *GormClient) migrateOnce(ctx context.Context) error {
	c.migrateMu.Lock()
	defer c.migrateMu.Unlock()
	if !c.migrate {
		return nil
	}
	if err := c.db.WithContext(ctx).AutoMigrate(allModels...); err != nil {
		return &RequestError{Op: "migrate", Err: err}
	}
	c.migrate = false
	return nil
}

func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return &RequestError{Op: op, Err: err}
}

func toMemberRow(m memberModel) MemberRow {
	return MemberRow{ID: m.ID, No: m.No, Name: m.Name, Instrument: m.Instrument}
}

func (c *GormClient) ListMembers(ctx context.Context) ([]MemberRow, error) {
	var models []memberModel
	if err := c.db.WithContext(ctx).Order("no ASC").Find(&models).Error; err != nil {
		return nil, wrap("list members", err)
	}
	rows := make([]MemberRow, 0, len(models))
	for _, m := range models {
		rows = append(rows, toMemberRow(m))
	}
	return rows, nil
}

func (c *GormClient) FindMemberByNo(ctx context.Context, no int) (MemberRow, error) {
	var m memberModel
	if err := c.db.WithContext(ctx).Where("no = ?", no).First(&m).Error; err != nil {
		return MemberRow{}, wrap("find member", err)
	}
	return toMemberRow(m), nil
}

func (c *GormClient) UpsertMember(ctx context.Context, m member.Member) (MemberRow, error) {
	model := memberModel{No: m.No, Name: m.Name, Instrument: string(m.Instrument)}
	err := c.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "no"}},
		DoUpdates: clause.AssignmentColumns([]string{"name", "instrument"}),
	}).Create(&model).Error
	if err != nil {
		return MemberRow{}, wrap("upsert member", err)
	}
	return c.FindMemberByNo(ctx, m.No)
}

func (c *GormClient) InsertMembers(ctx context.Context, ms []member.Member) error {
	if len(ms) == 0 {
		return nil
	}
	models := make([]memberModel, 0, len(ms))
	for _, m := range ms {
		models = append(models, memberModel{No: m.No, Name: m.Name, Instrument: string(m.Instrument)})
	}
	err := c.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "no"}},
		DoNothing: true,
	}).Create(&models).Error
	return wrap("insert members", err)
}

func (c *GormClient) DeleteMember(ctx context.Context, no int) error {
	err := c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var m memberModel
		if err := tx.Where("no = ?", no).First(&m).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil
			}
			return err
		}
		if err := tx.Where("member_id = ?", m.ID).Delete(&attendanceModel{}).Error; err != nil {
			return err
		}
		return tx.Delete(&memberModel{}, m.ID).Error
	})
	return wrap("delete member", err)
}

func (c *GormClient) ListAttendance(ctx context.Context) ([]AttendanceRow, error) {
	var models []attendanceModel
	if err := c.db.WithContext(ctx).Order("session_number ASC, member_id ASC").Find(&models).Error; err != nil {
		return nil, wrap("list attendance", err)
	}
	rows := make([]AttendanceRow, 0, len(models))
	for _, m := range models {
		rows = append(rows, AttendanceRow{
			MemberID:      m.MemberID,
			SessionNumber: m.SessionNumber,
			Status:        m.Status,
			UpdatedAt:     m.UpdatedAt,
		})
	}
	return rows, nil
}

func (c *GormClient) UpsertAttendance(ctx context.Context, row AttendanceRow) error {
	model := attendanceModel{
		MemberID:      row.MemberID,
		SessionNumber: row.SessionNumber,
		Status:        row.Status,
		UpdatedAt:     row.UpdatedAt,
	}
	err := c.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "member_id"}, {Name: "session_number"}},
		DoUpdates: clause.AssignmentColumns([]string{"status", "updated_at"}),
	}).Create(&model).Error
	return wrap("upsert attendance", err)
}

func (c *GormClient) ListSheetMusic(ctx context.Context) ([]sheetmusic.SheetMusic, error) {
	var models []sheetMusicModel
	if err := c.db.WithContext(ctx).Order("id ASC").Find(&models).Error; err != nil {
		return nil, wrap("list sheet music", err)
	}
	out := make([]sheetmusic.SheetMusic, 0, len(models))
	for _, m := range models {
		var files []sheetmusic.Attachment
		if len(m.Files) > 0 {
			if err := json.Unmarshal(m.Files, &files); err != nil {
				return nil, &RequestError{Op: "decode sheet music files", Err: err}
			}
		}
		out = append(out, sheetmusic.SheetMusic{
			ID:         m.ID,
			Title:      m.Title,
			Composer:   m.Composer,
			Arranger:   m.Arranger,
			Genre:      m.Genre,
			Difficulty: m.Difficulty,
			Notes:      m.Notes,
			Files:      files,
		})
	}
	return out, nil
}

func (c *GormClient) UpsertSheetMusic(ctx context.Context, s sheetmusic.SheetMusic) error {
	files := s.Files
	if files == nil {
		files = []sheetmusic.Attachment{}
	}
	raw, err := json.Marshal(files)
	if err != nil {
		return &RequestError{Op: "encode sheet music files", Err: err}
	}
	model := sheetMusicModel{
		ID:         s.ID,
		Title:      s.Title,
		Composer:   s.Composer,
		Arranger:   s.Arranger,
		Genre:      s.Genre,
		Difficulty: s.Difficulty,
		Notes:      s.Notes,
		Files:      datatypes.JSON(raw),
	}
	err = c.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"title", "composer", "arranger", "genre", "difficulty", "notes", "files"}),
	}).Create(&model).Error
	return wrap("upsert sheet music", err)
}

func (c *GormClient) DeleteSheetMusic(ctx context.Context, id string) error {
	err := c.db.WithContext(ctx).Where("id = ?", id).Delete(&sheetMusicModel{}).Error
	return wrap("delete sheet music", err)
}

func (c *GormClient) ListPracticeSongs(ctx context.Context) ([]practicesong.Song, error) {
	var models []practiceSongModel
	if err := c.db.WithContext(ctx).Order("id ASC").Find(&models).Error; err != nil {
		return nil, wrap("list practice songs", err)
	}
	out := make([]practicesong.Song, 0, len(models))
	for _, m := range models {
		out = append(out, practicesong.Song{
			ID:          m.ID,
			Title:       m.Title,
			Composer:    m.Composer,
			Description: m.Description,
			Difficulty:  m.Difficulty,
		})
	}
	return out, nil
}

func (c *GormClient) UpsertPracticeSong(ctx context.Context, s practicesong.Song) error {
	model := practiceSongModel{
		ID:          s.ID,
		Title:       s.Title,
		Composer:    s.Composer,
		Description: s.Description,
		Difficulty:  s.Difficulty,
	}
	err := c.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"title", "composer", "description", "difficulty"}),
	}).Create(&model).Error
	return wrap("upsert practice song", err)
}

func (c *GormClient) DeletePracticeSong(ctx context.Context, id string) error {
	err := c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("practice_song_id = ?", id).Delete(&sessionSongModel{}).Error; err != nil {
			return err
		}
		return tx.Where("id = ?", id).Delete(&practiceSongModel{}).Error
	})
	return wrap("delete practice song", err)
}

func (c *GormClient) ListSessionSongs(ctx context.Context) ([]SessionSongRow, error) {
	var models []sessionSongModel
	if err := c.db.WithContext(ctx).Order("session_number ASC, practice_song_id ASC").Find(&models).Error; err != nil {
		return nil, wrap("list session songs", err)
	}
	rows := make([]SessionSongRow, 0, len(models))
	for _, m := range models {
		rows = append(rows, SessionSongRow{SessionNumber: m.SessionNumber, PracticeSongID: m.PracticeSongID})
	}
	return rows, nil
}

func (c *GormClient) AddSessionSong(ctx context.Context, session int, songID string) error {
	model := sessionSongModel{SessionNumber: session, PracticeSongID: songID}
	err := c.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&model).Error
	return wrap("add session song", err)
}

func (c *GormClient) RemoveSessionSong(ctx context.Context, session int, songID string) error {
	err := c.db.WithContext(ctx).
		Where("session_number = ? AND practice_song_id = ?", session, songID).
		Delete(&sessionSongModel{}).Error
	return wrap("remove session song", err)
}

func (c *GormClient) PutObject(ctx context.Context, path, contentType string, data []byte) error {
	model := storageObjectModel{Path: path, ContentType: contentType, Data: data}
	err := c.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "path"}},
		DoUpdates: clause.AssignmentColumns([]string{"content_type", "data"}),
	}).Create(&model).Error
	return wrap("put object", err)
}

func (c *GormClient) GetObject(ctx context.Context, path string) ([]byte, string, error) {
	var model storageObjectModel
	if err := c.db.WithContext(ctx).Where("path = ?", path).First(&model).Error; err != nil {
		return nil, "", wrap("get object", err)
	}
	return model.Data, model.ContentType, nil
}

func (c *GormClient) DeleteObject(ctx context.Context, path string) error {
	err := c.db.WithContext(ctx).Where("path = ?", path).Delete(&storageObjectModel{}).Error
	return wrap("delete object", err)
}

var (
	_ Client    = (*GormClient)(nil)
	_ BlobStore = (*GormClient)(nil)
)
