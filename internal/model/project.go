package model

type Project struct {
	ID                string `json:"id" db:"id"`
	Name              string `json:"name" db:"name"`
	AccessPassword    string `json:"-" db:"access_password"`
	PromptTemplate    string `json:"prompt_template" db:"prompt_template"`
	MaxResponseLength int    `json:"max_response_length" db:"max_response_length"`
	ModelID           string `json:"model_id" db:"model_id"`
	BotToken          string `json:"-" db:"bot_token"`
	Active            bool   `json:"active" db:"active"`
	Ctime             int64  `json:"ctime" db:"ctime"`
	Mtime             int64  `json:"mtime" db:"mtime"`
}

// BotConfigured reports whether the project has a usable bot definition.
func (p *Project) BotConfigured() bool {
	return p.BotToken != ""
}
