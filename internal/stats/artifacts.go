package stats

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"flintsim/internal/model"
)

const (
	runIndexFile    = "run_index.json"
	runFile         = "run.json"
	episodesCSVFile = "episodes.csv"
)

var episodesCSVHeader = []string{
	"index", "seed", "steps", "total_reward", "terminal", "food_eaten", "final_nourishment", "final_flint",
}

type RunArtifacts struct {
	Run      model.RunRecord       `json:"run"`
	Episodes []model.EpisodeRecord `json:"episodes"`
}

type RunIndexEntry struct {
	RunID        string  `json:"run_id"`
	Scape        string  `json:"scape"`
	Agent        string  `json:"agent"`
	Episodes     int     `json:"episodes"`
	Seed         int64   `json:"seed"`
	MeanReturn   float64 `json:"mean_return"`
	BestReturn   float64 `json:"best_return"`
	CreatedAtUTC string  `json:"created_at_utc"`
}

// IndexEntry derives the index line for a persisted run.
func IndexEntry(run model.RunRecord) RunIndexEntry {
	return RunIndexEntry{
		RunID:        run.ID,
		Scape:        run.Scape,
		Agent:        run.Agent,
		Episodes:     run.Episodes,
		Seed:         run.Seed,
		MeanReturn:   run.MeanReturn,
		BestReturn:   run.BestReturn,
		CreatedAtUTC: run.CreatedAtUTC,
	}
}

func WriteRunArtifacts(baseDir string, artifacts RunArtifacts) (string, error) {
	if artifacts.Run.ID == "" {
		return "", fmt.Errorf("run id is required")
	}

	runDir := filepath.Join(baseDir, artifacts.Run.ID)
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return "", err
	}

	if err := writeJSON(filepath.Join(runDir, runFile), artifacts.Run); err != nil {
		return "", err
	}
	if err := writeEpisodesCSV(filepath.Join(runDir, episodesCSVFile), artifacts.Episodes); err != nil {
		return "", err
	}
	return runDir, nil
}

func ReadRunArtifacts(baseDir, runID string) (RunArtifacts, bool, error) {
	data, err := os.ReadFile(filepath.Join(baseDir, runID, runFile))
	if err != nil {
		if os.IsNotExist(err) {
			return RunArtifacts{}, false, nil
		}
		return RunArtifacts{}, false, err
	}

	var artifacts RunArtifacts
	if err := json.Unmarshal(data, &artifacts.Run); err != nil {
		return RunArtifacts{}, false, err
	}
	episodes, err := readEpisodesCSV(filepath.Join(baseDir, runID, episodesCSVFile), runID)
	if err != nil {
		return RunArtifacts{}, false, err
	}
	artifacts.Episodes = episodes
	return artifacts, true, nil
}

func AppendRunIndex(baseDir string, entry RunIndexEntry) error {
	if entry.RunID == "" {
		return fmt.Errorf("run id is required")
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return err
	}

	index, err := readRunIndex(baseDir)
	if err != nil {
		return err
	}

	for i := range index {
		if index[i].RunID == entry.RunID {
			index[i] = entry
			return writeJSON(filepath.Join(baseDir, runIndexFile), index)
		}
	}

	index = append(index, entry)
	return writeJSON(filepath.Join(baseDir, runIndexFile), index)
}

// ClearRunIndex drops the run index. Run directories stay on disk.
func ClearRunIndex(baseDir string) error {
	err := os.Remove(filepath.Join(baseDir, runIndexFile))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// ListRunIndex returns index entries newest first.
func ListRunIndex(baseDir string) ([]RunIndexEntry, error) {
	entries, err := readRunIndex(baseDir)
	if err != nil {
		return nil, err
	}

	type indexedEntry struct {
		entry RunIndexEntry
		idx   int
	}
	indexed := make([]indexedEntry, len(entries))
	for i := range entries {
		indexed[i] = indexedEntry{entry: entries[i], idx: i}
	}
	sort.Slice(indexed, func(i, j int) bool {
		if indexed[i].entry.CreatedAtUTC == indexed[j].entry.CreatedAtUTC {
			// Prefer later appended entries for equal timestamps.
			return indexed[i].idx > indexed[j].idx
		}
		return indexed[i].entry.CreatedAtUTC > indexed[j].entry.CreatedAtUTC
	})

	sorted := make([]RunIndexEntry, 0, len(indexed))
	for _, item := range indexed {
		sorted = append(sorted, item.entry)
	}
	return sorted, nil
}

func ExportRunArtifacts(baseDir, runID, outDir string) (string, error) {
	if runID == "" {
		return "", fmt.Errorf("run id is required")
	}

	src := filepath.Join(baseDir, runID)
	if _, err := os.Stat(src); err != nil {
		return "", err
	}

	dst := filepath.Join(outDir, runID)
	if err := os.MkdirAll(dst, 0o755); err != nil {
		return "", err
	}

	for _, file := range []string{runFile, episodesCSVFile} {
		if err := copyFile(filepath.Join(src, file), filepath.Join(dst, file)); err != nil {
			return "", err
		}
	}
	return dst, nil
}

func readRunIndex(baseDir string) ([]RunIndexEntry, error) {
	data, err := os.ReadFile(filepath.Join(baseDir, runIndexFile))
	if err != nil {
		if os.IsNotExist(err) {
			return []RunIndexEntry{}, nil
		}
		return nil, err
	}

	var entries []RunIndexEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

func writeEpisodesCSV(path string, episodes []model.EpisodeRecord) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if err := writer.Write(episodesCSVHeader); err != nil {
		return err
	}
	for _, episode := range episodes {
		record := []string{
			strconv.Itoa(episode.Index),
			strconv.FormatInt(episode.Seed, 10),
			strconv.Itoa(episode.Steps),
			formatFloat(episode.TotalReward),
			strconv.FormatBool(episode.Terminal),
			formatFloat(episode.FoodEaten),
			formatFloat(episode.FinalNourishment),
			formatFloat(episode.FinalFlint),
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return err
	}
	return file.Sync()
}

func readEpisodesCSV(path, runID string) ([]model.EpisodeRecord, error) {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = len(episodesCSVHeader)
	records, err := reader.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}

	episodes := make([]model.EpisodeRecord, 0, len(records)-1)
	for line, record := range records[1:] {
		episode, err := parseEpisodeRecord(record)
		if err != nil {
			return nil, fmt.Errorf("%s line %d: %w", episodesCSVFile, line+2, err)
		}
		episode.RunID = runID
		episodes = append(episodes, episode)
	}
	return episodes, nil
}

func parseEpisodeRecord(record []string) (model.EpisodeRecord, error) {
	var (
		episode model.EpisodeRecord
		err     error
	)
	if episode.Index, err = strconv.Atoi(record[0]); err != nil {
		return model.EpisodeRecord{}, err
	}
	if episode.Seed, err = strconv.ParseInt(record[1], 10, 64); err != nil {
		return model.EpisodeRecord{}, err
	}
	if episode.Steps, err = strconv.Atoi(record[2]); err != nil {
		return model.EpisodeRecord{}, err
	}
	if episode.TotalReward, err = strconv.ParseFloat(record[3], 64); err != nil {
		return model.EpisodeRecord{}, err
	}
	if episode.Terminal, err = strconv.ParseBool(record[4]); err != nil {
		return model.EpisodeRecord{}, err
	}
	if episode.FoodEaten, err = strconv.ParseFloat(record[5], 64); err != nil {
		return model.EpisodeRecord{}, err
	}
	if episode.FinalNourishment, err = strconv.ParseFloat(record[6], 64); err != nil {
		return model.EpisodeRecord{}, err
	}
	if episode.FinalFlint, err = strconv.ParseFloat(record[7], 64); err != nil {
		return model.EpisodeRecord{}, err
	}
	return episode, nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func writeJSON(path string, value any) error {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	return os.WriteFile(path, data, 0o644)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Sync()
}
