package services

import (
	"fmt"

	"github.com/localnerve/qatrack/internal/models"
	"gorm.io/gorm"
)

// vocabJoin is a join table holding references to a vocabulary record.
type vocabJoin struct {
	table  string
	column string
}

func vocabJoins[T Vocab]() []vocabJoin {
	switch any(new(T)).(type) {
	case *models.Tag:
		return []vocabJoin{{"project_tags", "tag_id"}}
	case *models.Responsible:
		return []vocabJoin{{"project_responsibles", "responsible_id"}, {"demand_responsibles", "responsible_id"}}
	case *models.Version:
		return []vocabJoin{{"project_versions", "version_id"}}
	case *models.Server:
		return []vocabJoin{{"project_servers", "server_id"}}
	}
	return nil
}

// ListVocab returns every record of a vocabulary sorted by name.
func ListVocab[T Vocab](db *gorm.DB) ([]T, error) {
	var records []T
	if err := db.Order("name ASC").Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}

// GetVocab loads one vocabulary record.
func GetVocab[T Vocab](db *gorm.DB, id string) (*T, error) {
	var record T
	if err := db.Where("id = ?", id).First(&record).Error; err != nil {
		return nil, findOr404(err, "record")
	}
	return &record, nil
}

// CreateVocab creates a record explicitly. An existing name is a conflict.
func CreateVocab[T Vocab, PT Named[T]](db *gorm.DB, name string) (*T, error) {
	name = NormalizeName(name)
	if name == "" {
		return nil, invalid("name is required")
	}

	rec := PT(new(T))
	rec.SetName(name)
	if err := db.Create(rec).Error; err != nil {
		if IsUniqueViolation(err) {
			return nil, fmt.Errorf("%w: %q already exists", ErrConflict, name)
		}
		return nil, err
	}
	return (*T)(rec), nil
}

// RenameVocab renames a record and returns the before and after states.
func RenameVocab[T Vocab, PT Named[T]](db *gorm.DB, id, name string) (*T, *T, error) {
	name = NormalizeName(name)
	if name == "" {
		return nil, nil, invalid("name is required")
	}

	before, err := GetVocab[T](db, id)
	if err != nil {
		return nil, nil, err
	}

	if err := db.Model(new(T)).Where("id = ?", id).Update("name", name).Error; err != nil {
		if IsUniqueViolation(err) {
			return nil, nil, fmt.Errorf("%w: %q already exists", ErrConflict, name)
		}
		return nil, nil, err
	}

	after, err := GetVocab[T](db, id)
	if err != nil {
		return nil, nil, err
	}
	return before, after, nil
}

// DeleteVocab pulls the record out of every project and demand referencing
// it, then deletes it. The returned record is the pre-delete state.
func DeleteVocab[T Vocab](db *gorm.DB, id string) (*T, error) {
	record, err := GetVocab[T](db, id)
	if err != nil {
		return nil, err
	}

	err = commit(db, func(tx *gorm.DB) error {
		for _, j := range vocabJoins[T]() {
			if err := tx.Exec(fmt.Sprintf("DELETE FROM %s WHERE %s = ?", j.table, j.column), id).Error; err != nil {
				return fmt.Errorf("unlink %s: %w", j.table, err)
			}
		}
		return tx.Where("id = ?", id).Delete(new(T)).Error
	})
	if err != nil {
		return nil, err
	}
	return record, nil
}
