package repo

import (
	"context"
	"database/sql"

	"github.com/didi/gendry/builder"

	"github.com/askbase/askbase/internal/model"
	"github.com/askbase/askbase/internal/pkg/dbutil"
	appErr "github.com/askbase/askbase/internal/pkg/errors"
)

var projectFields = []string{
	"id", "name", "access_password", "prompt_template", "max_response_length",
	"model_id", "bot_token", "active", "ctime", "mtime",
}

type ProjectRepo struct {
	db *sql.DB
}

func NewProjectRepo(db *sql.DB) *ProjectRepo {
	return &ProjectRepo{db: db}
}

func (r *ProjectRepo) Create(ctx context.Context, p *model.Project) error {
	data := map[string]interface{}{
		"id":                  p.ID,
		"name":                p.Name,
		"access_password":     p.AccessPassword,
		"prompt_template":     p.PromptTemplate,
		"max_response_length": p.MaxResponseLength,
		"model_id":            p.ModelID,
		"bot_token":           p.BotToken,
		"active":              p.Active,
		"ctime":               p.Ctime,
		"mtime":               p.Mtime,
	}
	sqlStr, args, err := builder.BuildInsert("projects", []map[string]interface{}{data})
	if err != nil {
		return err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	if _, err := r.db.ExecContext(ctx, sqlStr, args...); err != nil {
		if dbutil.IsConflict(err) {
			return appErr.ErrConflict
		}
		return err
	}
	return nil
}

func (r *ProjectRepo) GetByID(ctx context.Context, projectID string) (*model.Project, error) {
	where := map[string]interface{}{"id": projectID}
	sqlStr, args, err := builder.BuildSelect("projects", where, projectFields)
	if err != nil {
		return nil, err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	rows, err := r.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	if !rows.Next() {
		return nil, appErr.ErrNotFound
	}
	return scanProject(rows)
}

func (r *ProjectRepo) List(ctx context.Context) ([]*model.Project, error) {
	sqlStr, args, err := builder.BuildSelect("projects", map[string]interface{}{"_orderby": "ctime"}, projectFields)
	if err != nil {
		return nil, err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	rows, err := r.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var projects []*model.Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, err
		}
		projects = append(projects, p)
	}
	return projects, rows.Err()
}

// ListActiveBots returns projects that should have a bot worker running:
// active flag set and a bot token configured.
func (r *ProjectRepo) ListActiveBots(ctx context.Context) ([]*model.Project, error) {
	where := map[string]interface{}{
		"active":       true,
		"bot_token !=": "",
	}
	sqlStr, args, err := builder.BuildSelect("projects", where, projectFields)
	if err != nil {
		return nil, err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	rows, err := r.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var projects []*model.Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, err
		}
		projects = append(projects, p)
	}
	return projects, rows.Err()
}

func (r *ProjectRepo) Update(ctx context.Context, projectID string, update map[string]interface{}) error {
	where := map[string]interface{}{"id": projectID}
	sqlStr, args, err := builder.BuildUpdate("projects", where, update)
	if err != nil {
		return err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	result, err := r.db.ExecContext(ctx, sqlStr, args...)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return appErr.ErrNotFound
	}
	return nil
}

func (r *ProjectRepo) Delete(ctx context.Context, projectID string) error {
	where := map[string]interface{}{"id": projectID}
	sqlStr, args, err := builder.BuildDelete("projects", where)
	if err != nil {
		return err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	_, err = r.db.ExecContext(ctx, sqlStr, args...)
	return err
}

func scanProject(rows *sql.Rows) (*model.Project, error) {
	var p model.Project
	if err := rows.Scan(
		&p.ID, &p.Name, &p.AccessPassword, &p.PromptTemplate, &p.MaxResponseLength,
		&p.ModelID, &p.BotToken, &p.Active, &p.Ctime, &p.Mtime,
	); err != nil {
		return nil, err
	}
	return &p, nil
}
