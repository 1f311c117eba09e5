// Package teamenv switches a Jenkins team between its blue and green
// environments by editing the ansible group_vars configuration.
//
// Edits operate on the yaml node tree rather than a typed struct so that
// every unrelated key and comment in the shared group_vars file survives a
// rewrite.
package teamenv

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/apex/log"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

const teamsKey = "jenkins_teams_config"

var (
	// ErrTeamNotFound is returned when the named team has no entry under
	// jenkins_teams_config.
	ErrTeamNotFound = errors.New("team not found in configuration")

	// ErrInvalidEnvironment is returned for environment names other than
	// blue or green.
	ErrInvalidEnvironment = errors.New("environment must be 'blue' or 'green'")
)

// TeamStatus is one team's current deployment state.
type TeamStatus struct {
	Name             string
	Environment      string
	BlueGreenEnabled bool
}

// Editor reads and rewrites the team configuration file.
type Editor struct {
	path string
	now  func() time.Time
}

// NewEditor creates an editor for the configuration file at path.
func NewEditor(path string) *Editor {
	return &Editor{path: path, now: time.Now}
}

// Update sets team's active environment. The original file is backed up
// first; if the rewritten file cannot be saved the backup is restored, and
// the change is verified by re-reading the file afterwards. Requesting the
// environment the team is already on is a no-op.
func (e *Editor) Update(team, environment string) error {
	if environment != "blue" && environment != "green" {
		return errors.Wrap(ErrInvalidEnvironment, environment)
	}

	doc, err := e.load()
	if err != nil {
		return err
	}
	entry, err := findTeam(doc, team)
	if err != nil {
		return err
	}

	current := scalarValue(entry, "active_environment")
	if current == "" {
		current = "blue"
	}
	if current == environment {
		log.WithFields(log.Fields{
			"team":        team,
			"environment": environment,
		}).Info("team already on requested environment")
		return nil
	}

	backup, err := e.backup()
	if err != nil {
		return err
	}
	log.WithField("backup", backup).Info("created configuration backup")

	log.WithFields(log.Fields{
		"team": team,
		"from": current,
		"to":   environment,
	}).Info("updating team environment")

	setScalar(entry, "active_environment", environment)

	if err := e.save(doc); err != nil {
		log.WithError(err).Error("failed to save updated configuration")
		if rerr := copyFile(backup, e.path); rerr != nil {
			return errors.Wrap(rerr, "restoring configuration backup")
		}
		log.Info("restored configuration from backup")
		return err
	}

	return e.verify(team, environment)
}

// Show returns the status of every configured team.
func (e *Editor) Show() ([]TeamStatus, error) {
	doc, err := e.load()
	if err != nil {
		return nil, err
	}
	teams, err := teamsSequence(doc)
	if err != nil {
		return nil, err
	}

	statuses := make([]TeamStatus, 0, len(teams.Content))
	for _, entry := range teams.Content {
		status := TeamStatus{
			Name:             scalarValue(entry, "team_name"),
			Environment:      scalarValue(entry, "active_environment"),
			BlueGreenEnabled: scalarValue(entry, "blue_green_enabled") == "true",
		}
		if status.Name == "" {
			status.Name = "unknown"
		}
		if status.Environment == "" {
			status.Environment = "unknown"
		}
		statuses = append(statuses, status)
	}
	return statuses, nil
}

// Validate checks that team has every field blue-green switching needs.
func (e *Editor) Validate(team string) error {
	doc, err := e.load()
	if err != nil {
		return err
	}
	entry, err := findTeam(doc, team)
	if err != nil {
		return err
	}

	required := []string{"team_name", "blue_green_enabled", "active_environment", "ports"}
	var missing []string
	for _, field := range required {
		if mappingValue(entry, field) == nil {
			missing = append(missing, field)
		}
	}
	if len(missing) > 0 {
		return errors.Errorf("team %q missing required fields: %v", team, missing)
	}

	if scalarValue(entry, "blue_green_enabled") != "true" {
		return errors.Errorf("team %q does not have blue-green deployment enabled", team)
	}
	return nil
}

func (e *Editor) load() (*yaml.Node, error) {
	data, err := os.ReadFile(e.path)
	if err != nil {
		return nil, errors.Wrap(err, "reading team configuration")
	}
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, errors.Wrap(err, "parsing team configuration")
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 {
		return nil, errors.Errorf("team configuration %s is empty", e.path)
	}
	return &doc, nil
}

func (e *Editor) save(doc *yaml.Node) error {
	tmp := e.path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return errors.Wrap(err, "creating temp configuration")
	}

	enc := yaml.NewEncoder(f)
	enc.SetIndent(2)
	// Encode the document node itself so comments attached above the first
	// key are kept.
	err = enc.Encode(doc)
	if cerr := enc.Close(); err == nil {
		err = cerr
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(tmp)
		return errors.Wrap(err, "encoding team configuration")
	}

	if err := os.Rename(tmp, e.path); err != nil {
		os.Remove(tmp)
		return errors.Wrap(err, "replacing team configuration")
	}
	return nil
}

func (e *Editor) backup() (string, error) {
	backup := fmt.Sprintf("%s.backup_%s", e.path, e.now().Format("20060102_150405"))
	if err := copyFile(e.path, backup); err != nil {
		return "", errors.Wrap(err, "creating configuration backup")
	}
	return backup, nil
}

func (e *Editor) verify(team, environment string) error {
	doc, err := e.load()
	if err != nil {
		return errors.Wrap(err, "verifying configuration change")
	}
	entry, err := findTeam(doc, team)
	if err != nil {
		return errors.Wrap(err, "verifying configuration change")
	}
	if got := scalarValue(entry, "active_environment"); got != environment {
		return errors.Errorf("configuration verification failed: team %q is on %q, want %q",
			team, got, environment)
	}
	log.Info("configuration change verified")
	return nil
}

// teamsSequence returns the jenkins_teams_config sequence node.
func teamsSequence(doc *yaml.Node) (*yaml.Node, error) {
	root := doc.Content[0]
	teams := mappingValue(root, teamsKey)
	if teams == nil {
		return nil, errors.Errorf("%s not found in configuration", teamsKey)
	}
	if teams.Kind != yaml.SequenceNode {
		return nil, errors.Errorf("%s is not a list", teamsKey)
	}
	return teams, nil
}

func findTeam(doc *yaml.Node, team string) (*yaml.Node, error) {
	teams, err := teamsSequence(doc)
	if err != nil {
		return nil, err
	}
	for _, entry := range teams.Content {
		if scalarValue(entry, "team_name") == team {
			return entry, nil
		}
	}
	return nil, errors.Wrap(ErrTeamNotFound, team)
}

// mappingValue returns the value node for key in a mapping node, or nil.
func mappingValue(mapping *yaml.Node, key string) *yaml.Node {
	if mapping == nil || mapping.Kind != yaml.MappingNode {
		return nil
	}
	for i := 0; i+1 < len(mapping.Content); i += 2 {
		if mapping.Content[i].Value == key {
			return mapping.Content[i+1]
		}
	}
	return nil
}

func scalarValue(mapping *yaml.Node, key string) string {
	value := mappingValue(mapping, key)
	if value == nil || value.Kind != yaml.ScalarNode {
		return ""
	}
	return value.Value
}

// setScalar updates key's value in a mapping node, appending the pair if
// the key is absent.
func setScalar(mapping *yaml.Node, key, value string) {
	if existing := mappingValue(mapping, key); existing != nil {
		existing.SetString(value)
		return
	}
	keyNode := &yaml.Node{}
	keyNode.SetString(key)
	valueNode := &yaml.Node{}
	valueNode.SetString(value)
	mapping.Content = append(mapping.Content, keyNode, valueNode)
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
	_, err = io.Copy(out, in)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	return err
}
