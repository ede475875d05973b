package entry

import "time"

// ChangelogEntry is the persistence target of successful webhook
// processing. (project_id, pr_number) is the natural key: replays and
// PR edits update content fields in place, never duplicate rows.
type ChangelogEntry struct {
	ID             uint      `gorm:"column:id;primaryKey;autoIncrement"                      json:"id"`
	ProjectID      uint      `gorm:"column:project_id;not null;uniqueIndex:idx_entries_project_pr" json:"project_id"`
	PRNumber       int       `gorm:"column:pr_number;not null;uniqueIndex:idx_entries_project_pr"  json:"pr_number"`
	PRTitle        string    `gorm:"column:pr_title;type:text"                               json:"pr_title"`
	PRBody         string    `gorm:"column:pr_body;type:text"                                json:"pr_body"`
	PRUrl          string    `gorm:"column:pr_url;type:text"                                 json:"pr_url"`
	PRAuthor       string    `gorm:"column:pr_author;type:varchar(255)"                      json:"pr_author"`
	PRAuthorAvatar string    `gorm:"column:pr_author_avatar;type:text"                       json:"pr_author_avatar"`
	PRMergedAt     string    `gorm:"column:pr_merged_at;type:varchar(64)"                    json:"pr_merged_at"`
	Category       string    `gorm:"column:category;type:varchar(32)"                        json:"category"`
	Summary        string    `gorm:"column:summary;type:text"                                json:"summary"`
	Emoji          string    `gorm:"column:emoji;type:varchar(16)"                           json:"emoji"`
	IsPublished    bool      `gorm:"column:is_published;default:true"                        json:"is_published"`
	CreatedAt      time.Time `gorm:"column:created_at;autoCreateTime"                        json:"created_at"`
	UpdatedAt      time.Time `gorm:"column:updated_at;autoUpdateTime"                        json:"updated_at"`
}

func (ChangelogEntry) TableName() string {
	return "changelog_entries"
}
