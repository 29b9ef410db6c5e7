package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/tirumala-karthikeya/chat-pro/internal/models"
	"github.com/tirumala-karthikeya/chat-pro/pkg/config"
)

// Column defaults for the themed fields of the relational schema.
const (
	DefaultLogoColor     = "#000000"
	DefaultHeaderColor   = "#000000"
	DefaultGradientStart = "#ffffff"
	DefaultGradientEnd   = "#ffffff"
	DefaultWelcomeText   = "Welcome!"
)

// chatbotRow is the relational shape of a chatbot. Data carries the full
// record so fields without a column survive a round trip.
type chatbotRow struct {
	ID                  string         `gorm:"column:id;type:varchar(255);index:idx_chatbots_id"`
	UniqueID            string         `gorm:"column:unique_id;type:varchar(255);primaryKey"`
	Name                string         `gorm:"column:name;type:varchar(255);not null"`
	ChatLogoColor       string         `gorm:"column:chat_logo_color;type:varchar(50);not null"`
	ChatLogoImage       *string        `gorm:"column:chat_logo_image;type:text"`
	IconAvatarImage     *string        `gorm:"column:icon_avatar_image;type:text"`
	StaticImage         *string        `gorm:"column:static_image;type:text"`
	ChatHeaderColor     string         `gorm:"column:chat_header_color;type:varchar(50);not null"`
	ChatBgGradientStart string         `gorm:"column:chat_bg_gradient_start;type:varchar(50);not null"`
	ChatBgGradientEnd   string         `gorm:"column:chat_bg_gradient_end;type:varchar(50);not null"`
	BodyBackgroundImage *string        `gorm:"column:body_background_image;type:text"`
	WelcomeText         string         `gorm:"column:welcome_text;type:text;not null"`
	APIKey              string         `gorm:"column:api_key;type:varchar(255);not null"`
	AnalyticsURL        *string        `gorm:"column:analytics_url;type:text"`
	Data                datatypes.JSON `gorm:"column:data;type:jsonb"`
}

func (chatbotRow) TableName() string { return "chatbots" }

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func nullable(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}

func deref(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}

func toRow(bot models.Chatbot) (chatbotRow, error) {
	data, err := json.Marshal(bot)
	if err != nil {
		return chatbotRow{}, err
	}
	return chatbotRow{
		ID:                  bot.ID,
		UniqueID:            bot.UniqueID,
		Name:                bot.Name,
		ChatLogoColor:       orDefault(bot.ChatLogoColor, DefaultLogoColor),
		ChatLogoImage:       nullable(bot.ChatLogoImage),
		IconAvatarImage:     nullable(bot.IconAvatarImage),
		StaticImage:         nullable(bot.StaticImage),
		ChatHeaderColor:     orDefault(bot.ChatHeaderColor, DefaultHeaderColor),
		ChatBgGradientStart: orDefault(bot.ChatBgGradientStart, DefaultGradientStart),
		ChatBgGradientEnd:   orDefault(bot.ChatBgGradientEnd, DefaultGradientEnd),
		BodyBackgroundImage: nullable(bot.BodyBackgroundImage),
		WelcomeText:         orDefault(bot.WelcomeText, DefaultWelcomeText),
		APIKey:              bot.APIKey,
		AnalyticsURL:        nullable(bot.AnalyticsURL),
		Data:                datatypes.JSON(data),
	}, nil
}

// fromRow prefers the stored JSON document and only rebuilds the record
// from columns when the document is missing or unreadable.
func fromRow(row chatbotRow) models.Chatbot {
	if len(row.Data) > 0 && string(row.Data) != "null" {
		var bot models.Chatbot
		if err := json.Unmarshal(row.Data, &bot); err == nil {
			bot.UniqueID = row.UniqueID
			return bot
		}
	}
	return models.Chatbot{
		ID:                  row.ID,
		UniqueID:            row.UniqueID,
		Name:                row.Name,
		ChatLogoColor:       orDefault(row.ChatLogoColor, DefaultLogoColor),
		ChatLogoImage:       deref(row.ChatLogoImage),
		IconAvatarImage:     deref(row.IconAvatarImage),
		StaticImage:         deref(row.StaticImage),
		ChatHeaderColor:     orDefault(row.ChatHeaderColor, DefaultHeaderColor),
		ChatBgGradientStart: orDefault(row.ChatBgGradientStart, DefaultGradientStart),
		ChatBgGradientEnd:   orDefault(row.ChatBgGradientEnd, DefaultGradientEnd),
		BodyBackgroundImage: deref(row.BodyBackgroundImage),
		WelcomeText:         orDefault(row.WelcomeText, DefaultWelcomeText),
		APIKey:              row.APIKey,
		AnalyticsURL:        deref(row.AnalyticsURL),
	}
}

// PostgresStore is the relational engine, backed by gorm.
type PostgresStore struct {
	dsn  string
	opts config.DBOptions

	mu sync.Mutex
	db *gorm.DB
}

// NewPostgresStore returns an engine that opens dsn on the first Connect.
func NewPostgresStore(dsn string, opts config.DBOptions) *PostgresStore {
	return &PostgresStore{dsn: dsn, opts: opts}
}

// NewPostgresStoreFromDB wraps an already opened handle.
func NewPostgresStoreFromDB(db *gorm.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Name() string { return "postgres" }

func (s *PostgresStore) handle() (*gorm.DB, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil, errors.New("postgres: not connected")
	}
	return s.db, nil
}

func (s *PostgresStore) Connect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		db, err := config.NewDB(ctx, s.dsn, s.opts)
		if err != nil {
			return err
		}
		s.db = db
	}
	if err := config.TestConnection(ctx, s.db); err != nil {
		return err
	}
	if err := s.db.WithContext(ctx).AutoMigrate(&chatbotRow{}); err != nil {
		return fmt.Errorf("migrate chatbots table: %w", err)
	}
	return nil
}

func (s *PostgresStore) List(ctx context.Context) ([]models.Chatbot, error) {
	db, err := s.handle()
	if err != nil {
		return nil, err
	}
	var rows []chatbotRow
	if err := db.WithContext(ctx).Order("unique_id").Find(&rows).Error; err != nil {
		return nil, err
	}
	bots := make([]models.Chatbot, 0, len(rows))
	for _, row := range rows {
		bots = append(bots, fromRow(row))
	}
	return bots, nil
}

func (s *PostgresStore) Get(ctx context.Context, uniqueID string) (*models.Chatbot, error) {
	db, err := s.handle()
	if err != nil {
		return nil, err
	}
	var row chatbotRow
	err = db.WithContext(ctx).Where("unique_id = ?", uniqueID).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	bot := fromRow(row)
	return &bot, nil
}

func (s *PostgresStore) Create(ctx context.Context, bot *models.Chatbot) error {
	if err := validate(bot); err != nil {
		return err
	}
	db, err := s.handle()
	if err != nil {
		return err
	}
	row, err := toRow(*bot)
	if err != nil {
		return err
	}
	err = db.WithContext(ctx).Create(&row).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrAlreadyExists
	}
	return err
}

// Update merges patch into the stored record and rewrites every column.
func (s *PostgresStore) Update(ctx context.Context, uniqueID string, patch models.ChatbotPatch) (*models.Chatbot, error) {
	db, err := s.handle()
	if err != nil {
		return nil, err
	}

	var merged models.Chatbot
	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row chatbotRow
		if err := tx.Where("unique_id = ?", uniqueID).Take(&row).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}
		merged = fromRow(row)
		patch.Apply(&merged)

		next, err := toRow(merged)
		if err != nil {
			return err
		}
		return tx.Model(&chatbotRow{}).Where("unique_id = ?", uniqueID).Select("*").Updates(&next).Error
	})
	if err != nil {
		return nil, err
	}
	return &merged, nil
}

func (s *PostgresStore) Delete(ctx context.Context, uniqueID string) error {
	db, err := s.handle()
	if err != nil {
		return err
	}
	res := db.WithContext(ctx).Where("unique_id = ?", uniqueID).Delete(&chatbotRow{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) Stats(ctx context.Context) (Stats, error) {
	db, err := s.handle()
	if err != nil {
		return Stats{}, err
	}
	var st Stats
	if err := db.WithContext(ctx).Raw("SELECT version()").Scan(&st.Version).Error; err != nil {
		return Stats{}, err
	}
	if err := db.WithContext(ctx).Model(&chatbotRow{}).Count(&st.Count).Error; err != nil {
		return Stats{}, err
	}
	st.Location = RedactURL(s.dsn)
	return st, nil
}

func (s *PostgresStore) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	s.db = nil
	return sqlDB.Close()
}
