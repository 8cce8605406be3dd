package sqlstore

import (
	"time"

	"gorm.io/datatypes"
)

// Row models exist for schema migration only; reads and writes go through
// store.Record maps keyed by the same column names.

type promptRow struct {
	ID          string         `gorm:"column:id;type:varchar(36);primaryKey"`
	Name        string         `gorm:"column:name;size:255;uniqueIndex;not null"`
	Content     string         `gorm:"column:content;type:text"`
	Description string         `gorm:"column:description;type:text"`
	Metadata    datatypes.JSON `gorm:"column:metadata"`
	Version     string         `gorm:"column:version;size:64"`
	Author      string         `gorm:"column:author;size:255"`
	Tags        datatypes.JSON `gorm:"column:tags"`
	FilePath    string         `gorm:"column:file_path;size:1024"`
	CreatedAt   time.Time      `gorm:"column:created_at"`
	UpdatedAt   time.Time      `gorm:"column:updated_at"`
}

func (promptRow) TableName() string { return "prompts" }

type relationshipRow struct {
	ID                  string    `gorm:"column:id;type:varchar(36);primaryKey"`
	PromptID            string    `gorm:"column:prompt_id;type:varchar(36);uniqueIndex:idx_prompt_asset;not null"`
	AssetID             *string   `gorm:"column:asset_id;size:255;uniqueIndex:idx_prompt_asset"`
	AssetPath           string    `gorm:"column:asset_path;size:1024"`
	RelationshipType    string    `gorm:"column:relationship_type;size:64"`
	RelationshipContext string    `gorm:"column:relationship_context;type:text"`
	DocumentTypeID      string    `gorm:"column:document_type_id;size:255"`
	Description         string    `gorm:"column:description;type:text"`
	CreatedAt           time.Time `gorm:"column:created_at"`
	UpdatedAt           time.Time `gorm:"column:updated_at"`
}

func (relationshipRow) TableName() string { return "prompt_relationships" }

type templateRow struct {
	ID          string         `gorm:"column:id;type:varchar(36);primaryKey"`
	Name        string         `gorm:"column:name;size:255;uniqueIndex;not null"`
	Description string         `gorm:"column:description;type:text"`
	Template    datatypes.JSON `gorm:"column:template"`
	CreatedAt   time.Time      `gorm:"column:created_at"`
	UpdatedAt   time.Time      `gorm:"column:updated_at"`
}

func (templateRow) TableName() string { return "output_templates" }

type associationRow struct {
	ID         string    `gorm:"column:id;type:varchar(36);primaryKey"`
	PromptID   string    `gorm:"column:prompt_id;type:varchar(36);uniqueIndex:idx_prompt_template;not null"`
	TemplateID string    `gorm:"column:template_id;type:varchar(36);uniqueIndex:idx_prompt_template;not null"`
	Priority   int       `gorm:"column:priority;default:0"`
	CreatedAt  time.Time `gorm:"column:created_at"`
}

func (associationRow) TableName() string { return "prompt_output_templates" }
