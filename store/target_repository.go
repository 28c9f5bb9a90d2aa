package store

import (
	"database/sql"
	"fmt"

	planartrack "github.com/vantagecv/go-planartrack"
	"github.com/vantagecv/go-planartrack/match"
)

// TargetRepository persists registered targets and the feature sets of
// image targets.
type TargetRepository struct {
	db *DB
}

// NewTargetRepository creates a new SQLite target repository.
func NewTargetRepository(db *DB) *TargetRepository {
	return &TargetRepository{db: db}
}

// SaveTarget adds a target record to the database.  Saving a target whose
// key already exists updates it in place, keeping the row id so stored
// feature sets stay attached
func (r *TargetRepository) SaveTarget(target planartrack.Target) (int64, error) {
	r.db.Lock()
	defer r.db.Unlock()

	var id int64

	err := r.db.Conn().QueryRow(`
		INSERT INTO targets (key, kind, dictionary, marker_id, name, size)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			kind = excluded.kind,
			dictionary = excluded.dictionary,
			marker_id = excluded.marker_id,
			name = excluded.name,
			size = excluded.size
		RETURNING id
	`, target.Key(), int(target.Kind), target.Dictionary, target.ID,
		target.Name, target.Size).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to insert target: %w", err)
	}

	return id, nil
}

// SaveImageTarget adds an image target along with its extracted feature
// set
func (r *TargetRepository) SaveImageTarget(target planartrack.Target,
	width, height int, kps []match.KeyPoint, descs []match.Descriptor) error {

	if target.Kind != planartrack.TargetImage {
		return fmt.Errorf("target %s is not an image target", target)
	}

	if len(kps) != len(descs) {
		return fmt.Errorf("keypoint count %d does not match descriptor count %d",
			len(kps), len(descs))
	}

	id, err := r.SaveTarget(target)

	if err != nil {
		return err
	}

	r.db.Lock()
	defer r.db.Unlock()

	_, err = r.db.Conn().Exec(`
		INSERT OR REPLACE INTO features (target_id, width, height, keypoints, descriptors)
		VALUES (?, ?, ?, ?, ?)
	`, id, width, height, encodeKeyPoints(kps), encodeDescriptors(descs))
	if err != nil {
		return fmt.Errorf("failed to insert features: %w", err)
	}

	return nil
}

// GetTarget retrieves a target by its identity key.  Returns nil when the
// target does not exist
func (r *TargetRepository) GetTarget(key string) (*planartrack.Target, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	return r.scanTarget(r.db.Conn().QueryRow(`
		SELECT kind, dictionary, marker_id, name, size
		FROM targets WHERE key = ?
	`, key))
}

// GetAll retrieves every stored target
func (r *TargetRepository) GetAll() ([]planartrack.Target, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	rows, err := r.db.Conn().Query(`
		SELECT kind, dictionary, marker_id, name, size
		FROM targets ORDER BY key
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query targets: %w", err)
	}
	defer rows.Close()

	var targets []planartrack.Target

	for rows.Next() {
		var t planartrack.Target
		var kind int

		if err := rows.Scan(&kind, &t.Dictionary, &t.ID, &t.Name, &t.Size); err != nil {
			return nil, fmt.Errorf("failed to scan target: %w", err)
		}

		t.Kind = planartrack.TargetKind(kind)
		targets = append(targets, t)
	}

	return targets, nil
}

// GetImageFeatures retrieves the stored feature set of an image target
func (r *TargetRepository) GetImageFeatures(name string) (target planartrack.Target,
	width, height int, kps []match.KeyPoint, descs []match.Descriptor, err error) {

	r.db.RLock()
	defer r.db.RUnlock()

	var kind int
	var kpBlob, descBlob []byte

	err = r.db.Conn().QueryRow(`
		SELECT t.kind, t.dictionary, t.marker_id, t.name, t.size,
			f.width, f.height, f.keypoints, f.descriptors
		FROM targets t
		JOIN features f ON f.target_id = t.id
		WHERE t.name = ? AND t.kind = ?
	`, name, int(planartrack.TargetImage)).Scan(&kind, &target.Dictionary,
		&target.ID, &target.Name, &target.Size, &width, &height, &kpBlob, &descBlob)

	if err == sql.ErrNoRows {
		return planartrack.Target{}, 0, 0, nil, nil,
			fmt.Errorf("image target %q not stored", name)
	}
	if err != nil {
		return planartrack.Target{}, 0, 0, nil, nil,
			fmt.Errorf("failed to get image features: %w", err)
	}

	target.Kind = planartrack.TargetKind(kind)

	kps, err = decodeKeyPoints(kpBlob)

	if err != nil {
		return planartrack.Target{}, 0, 0, nil, nil, err
	}

	descs, err = decodeDescriptors(descBlob)

	if err != nil {
		return planartrack.Target{}, 0, 0, nil, nil, err
	}

	return target, width, height, kps, descs, nil
}

// LoadMatcher registers every stored image target's feature set with the
// matcher
func (r *TargetRepository) LoadMatcher(m *match.Matcher) error {

	targets, err := r.GetAll()

	if err != nil {
		return err
	}

	for _, t := range targets {

		if t.Kind != planartrack.TargetImage {
			continue
		}

		target, width, height, kps, descs, err := r.GetImageFeatures(t.Name)

		if err != nil {
			return fmt.Errorf("failed loading target %s: %w", t, err)
		}

		if err := m.RegisterPrecomputed(target, width, height, kps, descs); err != nil {
			return fmt.Errorf("failed registering target %s: %w", t, err)
		}
	}

	return nil
}

// SaveMatcher stores the feature sets of every target registered with the
// matcher
func (r *TargetRepository) SaveMatcher(m *match.Matcher) error {

	for _, t := range m.Targets() {

		width, height, kps, descs, err := m.TargetFeatures(t.Name)

		if err != nil {
			return err
		}

		if err := r.SaveImageTarget(t, width, height, kps, descs); err != nil {
			return err
		}
	}

	return nil
}

// Delete removes a target and its features by identity key.
func (r *TargetRepository) Delete(key string) error {
	r.db.Lock()
	defer r.db.Unlock()

	var id int64
	err := r.db.Conn().QueryRow(`SELECT id FROM targets WHERE key = ?`, key).Scan(&id)
	if err == sql.ErrNoRows {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to get target id: %w", err)
	}

	if _, err := r.db.Conn().Exec(`DELETE FROM features WHERE target_id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete features: %w", err)
	}

	if _, err := r.db.Conn().Exec(`DELETE FROM targets WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete target: %w", err)
	}

	return nil
}

// scanTarget reads one target row.  Returns nil when the row does not
// exist
func (r *TargetRepository) scanTarget(row *sql.Row) (*planartrack.Target, error) {

	var t planartrack.Target
	var kind int

	err := row.Scan(&kind, &t.Dictionary, &t.ID, &t.Name, &t.Size)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get target: %w", err)
	}

	t.Kind = planartrack.TargetKind(kind)

	return &t, nil
}
