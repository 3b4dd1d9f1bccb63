package episodic

import (
	"encoding/binary"
	"fmt"
	"log"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/anamnesis-ai/anamnesis/src/memory/embed"
	"github.com/anamnesis-ai/anamnesis/src/memory/model"
	"github.com/anamnesis-ai/anamnesis/src/memory/persist"
	"github.com/anamnesis-ai/anamnesis/src/memory/store"
	"github.com/google/uuid"
	json "github.com/alpkeskin/gotoon"
)

const (
	sessionsFile   = "sessions.json"
	embeddingsFile = "embeddings.bin"
	metadataFile   = "metadata.json"

	sessionsVersion = "2.0"

	binaryVersion = 1
	headerSize    = 32
	indexSize     = 32
)

// storageDocument is the on-disk shape of sessions.json.
type storageDocument struct {
	Metadata persist.Metadata `json:"metadata"`
	Sessions []model.Session  `json:"sessions"`
}

// Persistence reads and writes the episodic archive: a JSON sessions
// document plus a binary embeddings file, both under one directory.
type Persistence struct {
	dir    string
	logger *log.Logger
}

// NewPersistence prepares an archive rooted at dir.
func NewPersistence(dir string) (*Persistence, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create memory directory %s: %w", dir, err)
	}
	return &Persistence{
		dir:    dir,
		logger: log.New(os.Stderr, "[episodic/persist] ", log.LstdFlags),
	}, nil
}

// WithLogger overrides the persistence logger.
func (p *Persistence) WithLogger(logger *log.Logger) *Persistence {
	if logger != nil {
		p.logger = logger
	}
	return p
}

// Dir returns the archive directory.
func (p *Persistence) Dir() string { return p.dir }

func (p *Persistence) sessionsPath() string   { return filepath.Join(p.dir, sessionsFile) }
func (p *Persistence) embeddingsPath() string { return filepath.Join(p.dir, embeddingsFile) }
func (p *Persistence) metadataPath() string   { return filepath.Join(p.dir, metadataFile) }

// Save writes the manager's sessions, embeddings, and metadata. Each file
// is written to a temp name and renamed, so a crash mid-save leaves the
// previous archive intact.
func (p *Persistence) Save(m *Manager) error {
	sessions := make([]model.Session, 0, len(m.SessionHistory())+1)
	for _, session := range m.SessionHistory() {
		sessions = append(sessions, session)
	}
	sessions = append(sessions, m.CurrentSession())

	totalTurns := 0
	for _, session := range sessions {
		totalTurns += len(session.Turns)
	}

	now := time.Now().UTC()
	doc := storageDocument{
		Metadata: persist.Metadata{
			Version:      sessionsVersion,
			CreatedAt:    now,
			LastSaved:    now,
			SessionCount: len(sessions),
			TotalTurns:   totalTurns,
			EmbeddingDim: m.Store().Dimension(),
		},
		Sessions: sessions,
	}

	sessionsJSON, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("serialize sessions: %w", err)
	}
	if err := persist.WriteFileAtomic(p.sessionsPath(), sessionsJSON, 0o644); err != nil {
		return fmt.Errorf("write sessions file: %w", err)
	}

	if err := p.saveEmbeddings(m, sessions); err != nil {
		return err
	}

	metadataJSON, err := json.MarshalIndent(doc.Metadata, "", "  ")
	if err != nil {
		return fmt.Errorf("serialize metadata: %w", err)
	}
	if err := persist.WriteFileAtomic(p.metadataPath(), metadataJSON, 0o644); err != nil {
		return fmt.Errorf("write metadata file: %w", err)
	}

	p.logger.Printf("saved %d sessions (%d turns, dim=%d) to %s",
		len(sessions), totalTurns, doc.Metadata.EmbeddingDim, p.dir)
	return nil
}

// saveEmbeddings writes the binary archive: a fixed header, one index
// record per stored turn, then packed little-endian float32 data.
func (p *Persistence) saveEmbeddings(m *Manager, sessions []model.Session) error {
	byTurn := make(map[string][]float32)
	for _, entry := range m.Store().GetByType(model.Episodic(uuid.Nil, 0)) {
		key := entry.Kind.SessionID.String() + "/" + strconv.Itoa(entry.Kind.Turn)
		byTurn[key] = entry.Embedding
	}

	var index []embeddingIndex
	var data []byte
	for _, session := range sessions {
		for turnIdx := range session.Turns {
			embedding, ok := byTurn[session.ID.String()+"/"+strconv.Itoa(turnIdx)]
			if !ok {
				continue
			}
			index = append(index, embeddingIndex{
				SessionID: session.ID,
				Turn:      uint32(turnIdx),
				Offset:    uint64(len(data)),
				Length:    uint32(len(embedding)),
			})
			for _, v := range embedding {
				data = binary.LittleEndian.AppendUint32(data, math.Float32bits(v))
			}
		}
	}

	header := embeddingsHeader{
		Version:      binaryVersion,
		EmbeddingDim: uint32(m.Store().Dimension()),
		Num:          uint64(len(index)),
		IndexOffset:  headerSize,
		DataOffset:   headerSize + uint64(len(index))*indexSize,
	}

	content := make([]byte, 0, headerSize+len(index)*indexSize+len(data))
	content = append(content, header.marshal()...)
	for _, idx := range index {
		content = append(content, idx.marshal()...)
	}
	content = append(content, data...)

	if err := persist.WriteFileAtomic(p.embeddingsPath(), content, 0o644); err != nil {
		return fmt.Errorf("write embeddings file: %w", err)
	}
	p.logger.Printf("saved %d embeddings (%.2f KB)", len(index), float64(len(data))/1024.0)
	return nil
}

// Load rebuilds a manager from the archive. A missing archive yields a
// fresh manager; a corrupt one is a hard error. Loaded sessions all land in
// the history with a new empty current session on top.
func (p *Persistence) Load(embedder embed.Embedder, personaName string) (*Manager, error) {
	content, err := os.ReadFile(p.sessionsPath())
	if os.IsNotExist(err) {
		return NewManager(embedder, personaName), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read sessions file: %w", err)
	}

	var doc storageDocument
	if err := json.Unmarshal(content, &doc); err != nil {
		return nil, fmt.Errorf("deserialize sessions: %w", err)
	}

	dimension := doc.Metadata.EmbeddingDim
	if dimension <= 0 {
		dimension = embedder.Dim()
	}

	m := &Manager{
		current:     model.NewSession(personaName),
		history:     make(map[uuid.UUID]model.Session),
		vectors:     store.NewVectorStore(dimension),
		embedder:    embedder,
		maxSessions: DefaultMaxSessions,
		logger:      log.New(os.Stderr, "[episodic] ", log.LstdFlags),
	}
	for _, session := range doc.Sessions {
		m.history[session.ID] = session
	}

	if err := p.loadEmbeddings(m, dimension, doc.Sessions); err != nil {
		return nil, err
	}

	p.logger.Printf("loaded %d sessions (%d turns) from %s",
		len(doc.Sessions), doc.Metadata.TotalTurns, p.dir)
	return m, nil
}

func (p *Persistence) loadEmbeddings(m *Manager, dimension int, sessions []model.Session) error {
	content, err := os.ReadFile(p.embeddingsPath())
	if os.IsNotExist(err) {
		p.logger.Printf("no embeddings file found")
		return nil
	}
	if err != nil {
		return fmt.Errorf("read embeddings file: %w", err)
	}
	if len(content) < headerSize {
		return fmt.Errorf("embeddings file too small: %d < %d bytes", len(content), headerSize)
	}

	var header embeddingsHeader
	header.unmarshal(content[:headerSize])
	if header.Version != binaryVersion {
		return fmt.Errorf("unsupported embeddings version %d", header.Version)
	}

	turnText := make(map[string][2]string)
	for _, session := range sessions {
		for turnIdx, turn := range session.Turns {
			key := session.ID.String() + "/" + strconv.Itoa(turnIdx)
			turnText[key] = [2]string{turn.User, turn.Assistant}
		}
	}

	loaded := 0
	offset := int(header.IndexOffset)
	for i := uint64(0); i < header.Num; i++ {
		if offset+indexSize > len(content) {
			p.logger.Printf("index truncated at record %d, loading what fits", i)
			break
		}
		var idx embeddingIndex
		idx.unmarshal(content[offset : offset+indexSize])
		offset += indexSize

		dataStart := int(header.DataOffset) + int(idx.Offset)
		dataEnd := dataStart + int(idx.Length)*4
		if dataEnd > len(content) {
			p.logger.Printf("data truncated for session %s turn %d, skipping", idx.SessionID, idx.Turn)
			continue
		}
		embedding := make([]float32, idx.Length)
		for j := range embedding {
			bits := binary.LittleEndian.Uint32(content[dataStart+j*4:])
			embedding[j] = math.Float32frombits(bits)
		}
		if len(embedding) != dimension {
			continue
		}

		user, assistant := "unknown", "unknown"
		if text, ok := turnText[idx.SessionID.String()+"/"+strconv.Itoa(int(idx.Turn))]; ok {
			user, assistant = text[0], text[1]
		}

		entry := model.NewMemoryEntry(user, embedding, model.Episodic(idx.SessionID, int(idx.Turn))).
			WithMetadata("session_id", idx.SessionID.String()).
			WithMetadata("turn", strconv.Itoa(int(idx.Turn))).
			WithMetadata("user_query", user).
			WithMetadata("assistant_response", assistant)
		if err := m.vectors.Add(entry); err != nil {
			return fmt.Errorf("restore embedding: %w", err)
		}
		loaded++
	}

	p.logger.Printf("restored %d/%d embeddings", loaded, header.Num)
	return nil
}

// CleanupOld rewrites the sessions document dropping sessions not updated
// within maxAge, and returns how many were removed.
func (p *Persistence) CleanupOld(maxAge time.Duration) (int, error) {
	content, err := os.ReadFile(p.sessionsPath())
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read sessions file: %w", err)
	}

	var doc storageDocument
	if err := json.Unmarshal(content, &doc); err != nil {
		return 0, fmt.Errorf("deserialize sessions: %w", err)
	}

	cutoff := time.Now().UTC().Add(-maxAge)
	kept := doc.Sessions[:0]
	for _, session := range doc.Sessions {
		if session.UpdatedAt.After(cutoff) {
			kept = append(kept, session)
		}
	}
	removed := len(doc.Sessions) - len(kept)
	if removed == 0 {
		return 0, nil
	}

	doc.Sessions = kept
	doc.Metadata.SessionCount = len(kept)
	doc.Metadata.TotalTurns = 0
	for _, session := range kept {
		doc.Metadata.TotalTurns += len(session.Turns)
	}
	doc.Metadata.LastSaved = time.Now().UTC()

	sessionsJSON, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return 0, fmt.Errorf("serialize sessions: %w", err)
	}
	if err := persist.WriteFileAtomic(p.sessionsPath(), sessionsJSON, 0o644); err != nil {
		return 0, fmt.Errorf("write sessions file: %w", err)
	}

	if metadataJSON, err := json.MarshalIndent(doc.Metadata, "", "  "); err == nil {
		_ = persist.WriteFileAtomic(p.metadataPath(), metadataJSON, 0o644)
	}
	return removed, nil
}

// Metadata reads the standalone metadata file, or zero metadata when absent.
func (p *Persistence) Metadata() (persist.Metadata, error) {
	content, err := os.ReadFile(p.metadataPath())
	if os.IsNotExist(err) {
		return persist.Metadata{Version: sessionsVersion}, nil
	}
	if err != nil {
		return persist.Metadata{}, fmt.Errorf("read metadata file: %w", err)
	}
	var meta persist.Metadata
	if err := json.Unmarshal(content, &meta); err != nil {
		return persist.Metadata{}, fmt.Errorf("deserialize metadata: %w", err)
	}
	return meta, nil
}

// embeddingsHeader is the fixed 32-byte file header, little-endian.
type embeddingsHeader struct {
	Version      uint32
	EmbeddingDim uint32
	Num          uint64
	IndexOffset  uint64
	DataOffset   uint64
}

func (h embeddingsHeader) marshal() []byte {
	buf := make([]byte, headerSize)
	binary.LittleEndian.PutUint32(buf[0:4], h.Version)
	binary.LittleEndian.PutUint32(buf[4:8], h.EmbeddingDim)
	binary.LittleEndian.PutUint64(buf[8:16], h.Num)
	binary.LittleEndian.PutUint64(buf[16:24], h.IndexOffset)
	binary.LittleEndian.PutUint64(buf[24:32], h.DataOffset)
	return buf
}

func (h *embeddingsHeader) unmarshal(buf []byte) {
	h.Version = binary.LittleEndian.Uint32(buf[0:4])
	h.EmbeddingDim = binary.LittleEndian.Uint32(buf[4:8])
	h.Num = binary.LittleEndian.Uint64(buf[8:16])
	h.IndexOffset = binary.LittleEndian.Uint64(buf[16:24])
	h.DataOffset = binary.LittleEndian.Uint64(buf[24:32])
}

// embeddingIndex is one 32-byte index record. Offset is in bytes relative
// to the header's data offset.
type embeddingIndex struct {
	SessionID uuid.UUID
	Turn      uint32
	Offset    uint64
	Length    uint32
}

func (e embeddingIndex) marshal() []byte {
	buf := make([]byte, indexSize)
	copy(buf[0:16], e.SessionID[:])
	binary.LittleEndian.PutUint32(buf[16:20], e.Turn)
	binary.LittleEndian.PutUint64(buf[20:28], e.Offset)
	binary.LittleEndian.PutUint32(buf[28:32], e.Length)
	return buf
}

func (e *embeddingIndex) unmarshal(buf []byte) {
	copy(e.SessionID[:], buf[0:16])
	e.Turn = binary.LittleEndian.Uint32(buf[16:20])
	e.Offset = binary.LittleEndian.Uint64(buf[20:28])
	e.Length = binary.LittleEndian.Uint32(buf[28:32])
}
