package user

import "time"

// User holds the GitHub OAuth identity a project syncs through. Account
// management lives in the dashboard; this service only reads tokens.
type User struct {
	ID          uint      `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	GithubID    int64     `gorm:"column:github_id;uniqueIndex"       json:"github_id"`
	Login       string    `gorm:"column:login;type:varchar(255)"     json:"login"`
	AccessToken string    `gorm:"column:access_token;type:text"      json:"-"`
	CreatedAt   time.Time `gorm:"column:created_at;autoCreateTime"   json:"created_at"`
}

func (User) TableName() string {
	return "users"
}
