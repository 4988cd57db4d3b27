package pgstore

import (
	"context"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Row models drive AutoMigrate only; queries go through database/sql.

type playerRow struct {
	ID           int64     `gorm:"column:id;primaryKey;autoIncrement"`
	Handle       string    `gorm:"column:handle;type:text;not null"`
	HandleKey    string    `gorm:"column:handle_key;type:text;not null;uniqueIndex:ux_players_handle_key"`
	RegisteredAt time.Time `gorm:"column:registered_at;type:timestamptz;not null"`
}

func (playerRow) TableName() string { return "players" }

type matchRow struct {
	ID                int64      `gorm:"column:id;primaryKey;autoIncrement"`
	PlayerAID         int64      `gorm:"column:player_a_id;not null;index"`
	PlayerBID         int64      `gorm:"column:player_b_id;not null;index"`
	StartedAt         time.Time  `gorm:"column:started_at;type:timestamptz;not null"`
	EndedAt           *time.Time `gorm:"column:ended_at;type:timestamptz"`
	State             string     `gorm:"column:state;type:text;not null;index"`
	WinnerID          *int64     `gorm:"column:winner_id"`
	LoserID           *int64     `gorm:"column:loser_id"`
	IsRematch         bool       `gorm:"column:is_rematch;not null;default:false"`
	OriginMatchID     *int64     `gorm:"column:origin_match_id;index"`
	RematchAccepted   *bool      `gorm:"column:rematch_accepted"`
	RematchAcceptedAt *time.Time `gorm:"column:rematch_accepted_at;type:timestamptz"`

	PlayerA *playerRow `gorm:"foreignKey:PlayerAID;references:ID;constraint:OnDelete:RESTRICT"`
	PlayerB *playerRow `gorm:"foreignKey:PlayerBID;references:ID;constraint:OnDelete:RESTRICT"`
	Winner  *playerRow `gorm:"foreignKey:WinnerID;references:ID;constraint:OnDelete:RESTRICT"`
	Loser   *playerRow `gorm:"foreignKey:LoserID;references:ID;constraint:OnDelete:RESTRICT"`
	Origin  *matchRow  `gorm:"foreignKey:OriginMatchID;references:ID;constraint:OnDelete:RESTRICT"`
}

func (matchRow) TableName() string { return "matches" }

type roundRow struct {
	ID        int64     `gorm:"column:id;primaryKey;autoIncrement"`
	MatchID   int64     `gorm:"column:match_id;not null;uniqueIndex:ux_rounds_match_number,priority:1"`
	Number    int       `gorm:"column:number;not null;uniqueIndex:ux_rounds_match_number,priority:2"`
	MoveA     string    `gorm:"column:move_a;type:text;not null"`
	MoveB     string    `gorm:"column:move_b;type:text;not null"`
	Outcome   string    `gorm:"column:outcome;type:text;not null"`
	WinnerID  *int64    `gorm:"column:winner_id"`
	LoserID   *int64    `gorm:"column:loser_id"`
	CreatedAt time.Time `gorm:"column:created_at;type:timestamptz;not null"`

	Match  *matchRow  `gorm:"foreignKey:MatchID;references:ID;constraint:OnDelete:CASCADE"`
	Winner *playerRow `gorm:"foreignKey:WinnerID;references:ID;constraint:OnDelete:RESTRICT"`
	Loser  *playerRow `gorm:"foreignKey:LoserID;references:ID;constraint:OnDelete:RESTRICT"`
}

func (roundRow) TableName() string { return "rounds" }

// Migrate creates or updates the schema.
func Migrate(ctx context.Context, databaseURL string) error {
	db, err := gorm.Open(postgres.Open(databaseURL), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return fmt.Errorf("gorm open: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	defer sqlDB.Close()
	if err := db.WithContext(ctx).AutoMigrate(&playerRow{}, &matchRow{}, &roundRow{}); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return nil
}
