package services

import (
	"fmt"
	"strings"

	"github.com/localnerve/qatrack/internal/models"
	"gorm.io/gorm"
)

// Vocab is the set of reference vocabularies grown by ResolveNames.
type Vocab interface {
	models.Responsible | models.Tag | models.Version | models.Server
}

// Named is satisfied by pointers to vocabulary records.
type Named[T Vocab] interface {
	*T
	GetID() string
	SetName(string)
}

// NormalizeName trims and lowercases a vocabulary name.
func NormalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// normalizeNames returns the distinct non-empty normalized names, first occurrence wins.
func normalizeNames(names []string) []string {
	seen := make(map[string]struct{}, len(names))
	out := make([]string, 0, len(names))
	for _, n := range names {
		n = NormalizeName(n)
		if n == "" {
			continue
		}
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	return out
}

// ResolveNames maps free-text names to vocabulary ids, creating the records
// that do not exist yet. Callers must rely on set membership only.
// Already created records are not rolled back when a later name fails.
func ResolveNames[T Vocab, PT Named[T]](db *gorm.DB, names []string) ([]string, error) {
	normalized := normalizeNames(names)
	ids := make([]string, 0, len(normalized))

	for _, name := range normalized {
		id, err := resolveName[T, PT](db, name)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}

	return ids, nil
}

func resolveName[T Vocab, PT Named[T]](db *gorm.DB, name string) (string, error) {
	if id, err := lookupName[T](db, name); err != nil || id != "" {
		return id, err
	}

	rec := PT(new(T))
	rec.SetName(name)
	err := db.Create(rec).Error
	if err == nil {
		return rec.GetID(), nil
	}
	if !IsUniqueViolation(err) {
		return "", fmt.Errorf("create %q: %w", name, err)
	}

	// A concurrent writer created it first
	id, lookupErr := lookupName[T](db, name)
	if lookupErr != nil {
		return "", lookupErr
	}
	if id == "" {
		return "", fmt.Errorf("create %q: %w", name, err)
	}
	return id, nil
}

func lookupName[T Vocab](db *gorm.DB, name string) (string, error) {
	var ids []string
	if err := db.Model(new(T)).Where("name = ?", name).Limit(1).Pluck("id", &ids).Error; err != nil {
		return "", err
	}
	if len(ids) == 0 {
		return "", nil
	}
	return ids[0], nil
}

// loadVocab loads the vocabulary records for ids, used to replace associations.
func loadVocab[T Vocab](db *gorm.DB, ids []string) ([]T, error) {
	records := make([]T, 0, len(ids))
	if len(ids) == 0 {
		return records, nil
	}
	if err := db.Where("id IN ?", ids).Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}

// resolveRecords resolves names straight to records.
func resolveRecords[T Vocab, PT Named[T]](db *gorm.DB, names []string) ([]T, error) {
	ids, err := ResolveNames[T, PT](db, names)
	if err != nil {
		return nil, err
	}
	return loadVocab[T](db, ids)
}
