// Package missions is the Project Brain: persistent goals that survive
// restarts so the assistant keeps working toward them instead of only
// reacting. State lives in missions.json under the data dir.
package missions

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Mission status values.
const (
	StatusInProgress = "in_progress"
	StatusCompleted  = "completed"
	StatusPaused     = "paused"
)

// MaxStoredMissions bounds missions.json; oldest missions fall off.
const MaxStoredMissions = 20

// Mission is one persistent goal with its remaining tasks.
type Mission struct {
	Project     string   `json:"project"`
	Goal        string   `json:"goal"`
	Status      string   `json:"status"`
	Tasks       []string `json:"tasks"`
	CurrentTask string   `json:"current_task"`
	Progress    float64  `json:"progress"`
	CreatedAt   string   `json:"created_at"`
	UpdatedAt   string   `json:"updated_at"`
	UserID      string   `json:"user_id,omitempty"`
	ChatID      string   `json:"chat_id,omitempty"`
}

type missionFile struct {
	Missions []Mission `json:"missions"`
	ActiveID string    `json:"active_id,omitempty"`
}

// Brain manages missions for all users behind a single file.
type Brain struct {
	mu   sync.Mutex
	path string
	now  func() time.Time
}

// NewBrain stores state under dataDir/missions.json.
func NewBrain(dataDir string) *Brain {
	return &Brain{
		path: filepath.Join(dataDir, "missions.json"),
		now:  time.Now,
	}
}

func (b *Brain) load() missionFile {
	var mf missionFile
	data, err := os.ReadFile(b.path)
	if err != nil {
		return mf
	}
	_ = json.Unmarshal(data, &mf)
	return mf
}

func (b *Brain) save(mf missionFile) error {
	if len(mf.Missions) > MaxStoredMissions {
		mf.Missions = mf.Missions[len(mf.Missions)-MaxStoredMissions:]
	}
	if err := os.MkdirAll(filepath.Dir(b.path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(mf, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(b.path, data, 0o644)
}

// Create starts a new in-progress mission and makes it active. Any
// mission already in progress for the same (user, chat) context is
// paused first so at most one stays active per context.
func (b *Brain) Create(project, goal string, tasks []string, userID, chatID string) (*Mission, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now().UTC().Format(time.RFC3339)
	mf := b.load()
	for i := range mf.Missions {
		m := &mf.Missions[i]
		if m.Status == StatusInProgress && m.UserID == userID && m.ChatID == chatID {
			m.Status = StatusPaused
			m.UpdatedAt = now
		}
	}

	mission := Mission{
		Project:   project,
		Goal:      goal,
		Status:    StatusInProgress,
		Tasks:     append([]string(nil), tasks...),
		Progress:  0,
		CreatedAt: now,
		UpdatedAt: now,
		UserID:    userID,
		ChatID:    chatID,
	}
	if len(tasks) > 0 {
		mission.CurrentTask = tasks[0]
	}
	mf.Missions = append(mf.Missions, mission)
	mf.ActiveID = project
	if err := b.save(mf); err != nil {
		return nil, err
	}
	return &mission, nil
}

// Active returns the in-progress mission for the context, or nil.
// The explicitly activated mission wins; otherwise the first
// in-progress mission matching the user and chat.
func (b *Brain) Active(userID, chatID string) *Mission {
	b.mu.Lock()
	defer b.mu.Unlock()

	mf := b.load()
	for i := range mf.Missions {
		m := mf.Missions[i]
		if m.Status != StatusInProgress {
			continue
		}
		if mf.ActiveID != "" && m.Project == mf.ActiveID {
			return &m
		}
		if userID != "" && m.UserID != "" && m.UserID != userID {
			continue
		}
		if chatID != "" && m.ChatID != "" && m.ChatID != chatID {
			continue
		}
		return &m
	}
	return nil
}

// Progress records forward motion on a mission. A task named in
// taskDone is removed from the remaining list; delta is added to
// progress (clamped to 1.0); currentTask, when non-nil, replaces the
// current task. The mission auto-completes when no tasks remain and
// progress reached 1.0.
func (b *Brain) Progress(project, taskDone string, delta float64, currentTask *string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	mf := b.load()
	for i := range mf.Missions {
		m := &mf.Missions[i]
		if m.Project != project || m.Status != StatusInProgress {
			continue
		}
		if taskDone != "" {
			kept := m.Tasks[:0]
			for _, t := range m.Tasks {
				if t != taskDone {
					kept = append(kept, t)
				}
			}
			m.Tasks = kept
		}
		if delta != 0 {
			m.Progress += delta
			if m.Progress > 1.0 {
				m.Progress = 1.0
			}
		}
		if currentTask != nil {
			m.CurrentTask = *currentTask
		}
		m.UpdatedAt = b.now().UTC().Format(time.RFC3339)
		if len(m.Tasks) == 0 && m.Progress >= 1.0 {
			m.Status = StatusCompleted
		}
		return b.save(mf) == nil
	}
	return false
}

// Complete forcibly finishes a mission and clears the active pointer.
func (b *Brain) Complete(project string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	mf := b.load()
	for i := range mf.Missions {
		m := &mf.Missions[i]
		if m.Project != project {
			continue
		}
		m.Status = StatusCompleted
		m.Progress = 1.0
		m.UpdatedAt = b.now().UTC().Format(time.RFC3339)
		mf.ActiveID = ""
		return b.save(mf) == nil
	}
	return false
}

// Pause suspends a mission without losing its state.
func (b *Brain) Pause(project string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	mf := b.load()
	for i := range mf.Missions {
		m := &mf.Missions[i]
		if m.Project != project || m.Status != StatusInProgress {
			continue
		}
		m.Status = StatusPaused
		m.UpdatedAt = b.now().UTC().Format(time.RFC3339)
		if mf.ActiveID == project {
			mf.ActiveID = ""
		}
		return b.save(mf) == nil
	}
	return false
}

// All returns every stored mission, oldest first.
func (b *Brain) All() []Mission {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.load().Missions
}
