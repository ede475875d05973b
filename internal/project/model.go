package project

import "time"

// Project is a tracked GitHub repository. Provisioning is owned by the
// dashboard; this service only reads projects and bumps last_synced_at.
type Project struct {
	ID            uint       `gorm:"column:id;primaryKey;autoIncrement"  json:"id"`
	UserID        uint       `gorm:"column:user_id;not null"             json:"user_id"`
	GithubRepoID  int64      `gorm:"column:github_repo_id;uniqueIndex"   json:"github_repo_id"`
	Name          string     `gorm:"column:name;type:varchar(255)"       json:"name"`
	Slug          string     `gorm:"column:slug;type:varchar(255)"       json:"slug"`
	FullName      string     `gorm:"column:full_name;type:varchar(255)"  json:"full_name"`
	DefaultBranch string     `gorm:"column:default_branch"               json:"default_branch"`
	WebhookSecret string     `gorm:"column:webhook_secret;type:varchar(255)" json:"-"`
	LastSyncedAt  *time.Time `gorm:"column:last_synced_at"               json:"last_synced_at"`
	CreatedAt     time.Time  `gorm:"column:created_at;autoCreateTime"    json:"created_at"`
	UpdatedAt     time.Time  `gorm:"column:updated_at;autoUpdateTime"    json:"updated_at"`
}

func (Project) TableName() string {
	return "projects"
}
