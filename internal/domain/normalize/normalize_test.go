package normalize

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/clouddesk/internal/shared/types"
)

const taskDeploymentDoc = `{
  "action": "task_deployment",
  "deploymentInfo": {
    "deploymentId": 12,
    "deployedAt": "2025-01-02T09:00:00Z",
    "operator": {"userId": 1, "username": "alice", "role": "operator", "accountType": "staff",
                 "credentials": {"username": "alice", "password": "s3cret", "role": "user"}}
  },
  "assignedTasks": [
    {"taskId": 7, "assignmentId": 70, "taskName": "Patch core switch", "taskType": "maintenance",
     "phase": "rollout", "roleBinding": "net_eng", "status": "in_progress", "progress": 150,
     "priority": "high", "assignedAt": "2025-01-02 08:00:00", "lastUpdate": 1735808400},
    {"taskId": "8", "assignmentId": 80, "taskName": "Audit firewall", "status": 1, "progress": -5}
  ],
  "deploymentSummary": {"totalTasks": 2}
}`

const userDataSyncDoc = `{
  "action": "user_data_sync",
  "syncInfo": {"syncedAt": "2025-01-02T09:00:00.123+02:00", "source": "portal"},
  "users": [
    {"userId": 1, "username": "alice", "role": "operator", "accountType": "staff", "password": "pw"},
    {"userId": 2, "username": "bob", "role": "viewer"}
  ],
  "syncSummary": {"totalUsers": 2}
}`

const roleSelectionDoc = `{
  "action": "role_selection",
  "user": {"id": 1, "username": "alice", "role": "operator"},
  "selectedRole": {"value": "net_eng", "label": "Network Engineer"}
}`

const legacyDoc = `{
  "username": "carol",
  "tasks": [
    {"id": "A-1", "name": "Replace cable", "status": "done", "progress": "100%", "assigned_at": "2025-01-02T08:00:00"},
    {"id": 2, "name": "Label ports"}
  ]
}`

func TestNormalizeRecognizedFormats(t *testing.T) {
	tests := []struct {
		name         string
		doc          string
		format       types.ProducerFormat
		username     string
		tasks        int
		remoteFetch  bool
		validationOK bool
	}{
		{"task deployment", taskDeploymentDoc, types.FormatTaskDeployment, "alice", 2, false, true},
		{"user data sync", userDataSyncDoc, types.FormatUserDataSync, "alice", 0, true, true},
		{"role selection", roleSelectionDoc, types.FormatRoleSelection, "alice", 0, false, true},
		{"legacy", legacyDoc, types.FormatLegacy, "carol", 2, false, true},
	}

	n := New(nil, nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := n.Normalize([]byte(tt.doc))
			require.NoError(t, err)

			assert.Equal(t, tt.format, res.Format)
			assert.Equal(t, tt.username, res.User.Username)
			assert.NotEmpty(t, res.User.Username)
			assert.Len(t, res.Tasks, tt.tasks)
			assert.NotNil(t, res.Tasks)
			assert.Equal(t, tt.remoteFetch, res.NeedsRemoteFetch)
			assert.Equal(t, tt.validationOK, res.ValidationPassed, "%v", res.Diagnostics)

			for _, task := range res.Tasks {
				assert.GreaterOrEqual(t, task.ProgressPercent, 0)
				assert.LessOrEqual(t, task.ProgressPercent, 100)
				assert.NotEmpty(t, task.Status)
				assert.Equal(t, tt.format, task.SourceFormat)
			}
		})
	}
}

func TestTaskDeploymentFields(t *testing.T) {
	res, err := New(nil, nil).Normalize([]byte(taskDeploymentDoc))
	require.NoError(t, err)

	assert.Equal(t, "1", res.User.ID)
	require.NotNil(t, res.User.Credentials)
	assert.Equal(t, "s3cret", res.User.Credentials.Password)

	first := res.Tasks[0]
	assert.Equal(t, types.TaskID("7"), first.ID)
	assert.Equal(t, types.StatusInProgress, first.Status)
	assert.Equal(t, types.PriorityHigh, first.Priority)
	assert.Equal(t, 100, first.ProgressPercent)
	require.NotNil(t, first.AssignedAt)
	assert.Equal(t, time.Date(2025, 1, 2, 8, 0, 0, 0, time.UTC), *first.AssignedAt)
	require.NotNil(t, first.LastUpdate)
	assert.Equal(t, time.Unix(1735808400, 0).UTC(), *first.LastUpdate)

	second := res.Tasks[1]
	assert.Equal(t, types.TaskID("8"), second.ID)
	assert.Equal(t, types.StatusPending, second.Status, "numeric status code 1")
	assert.Equal(t, 0, second.ProgressPercent)
	assert.Equal(t, types.PriorityNormal, second.Priority)
}

func TestScenarioRoleSelection(t *testing.T) {
	res, err := New(nil, nil).Normalize([]byte(roleSelectionDoc))
	require.NoError(t, err)

	assert.False(t, res.NeedsRemoteFetch)
	require.NotNil(t, res.SelectedRole)
	assert.Equal(t, "net_eng", res.SelectedRole.Value)
	assert.Equal(t, "Network Engineer", res.SelectedRole.Label)

	doc := res.Document(types.SourceProducer)
	assert.True(t, doc.Normalized)
	assert.True(t, doc.TriggersHandoff())
	assert.JSONEq(t, roleSelectionDoc, string(doc.RawPayload))
}

func TestUserDataSyncCredentials(t *testing.T) {
	res, err := New(nil, nil).Normalize([]byte(userDataSyncDoc))
	require.NoError(t, err)

	require.NotNil(t, res.User.Credentials)
	assert.Equal(t, "alice", res.User.Credentials.Username)
	assert.Equal(t, "pw", res.User.Credentials.Password)
	assert.Equal(t, "operator", res.User.Credentials.Role)
}

func TestValidationErrors(t *testing.T) {
	tests := []struct {
		name   string
		doc    string
		format types.ProducerFormat
		object string
		index  int
		key    string
	}{
		{
			name: "missing task key",
			doc: `{"action":"task_deployment","deploymentInfo":{"operator":{"userId":1,"username":"a"}},
				"assignedTasks":[{"taskId":1,"assignmentId":2,"taskName":"x","status":"pending"},
				                 {"assignmentId":3,"taskName":"y","status":"pending"}],
				"deploymentSummary":{}}`,
			format: types.FormatTaskDeployment, object: "assignedTasks", index: 1, key: "taskId",
		},
		{
			name: "missing operator key",
			doc: `{"action":"task_deployment","deploymentInfo":{"operator":{"userId":1}},
				"assignedTasks":[],"deploymentSummary":{}}`,
			format: types.FormatTaskDeployment, object: "operator", index: -1, key: "username",
		},
		{
			name: "non-numeric assignment id",
			doc: `{"action":"task_deployment","deploymentInfo":{"operator":{"userId":1,"username":"a"}},
				"assignedTasks":[{"taskId":1,"assignmentId":"abc","taskName":"x","status":"pending"}],
				"deploymentSummary":{}}`,
			format: types.FormatTaskDeployment, object: "assignedTasks", index: 0, key: "assignmentId",
		},
		{
			name: "bad timestamp",
			doc: `{"action":"task_deployment","deploymentInfo":{"operator":{"userId":1,"username":"a"}},
				"assignedTasks":[{"taskId":1,"assignmentId":2,"taskName":"x","status":"pending","assignedAt":"yesterday"}],
				"deploymentSummary":{}}`,
			format: types.FormatTaskDeployment, object: "assignedTasks", index: 0, key: "assignedAt",
		},
		{
			name:   "non-numeric user id",
			doc:    `{"action":"user_data_sync","syncInfo":{},"users":[{"userId":"u1","username":"a","role":"r"}],"syncSummary":{}}`,
			format: types.FormatUserDataSync, object: "users", index: 0, key: "userId",
		},
		{
			name:   "missing user role",
			doc:    `{"action":"user_data_sync","syncInfo":{},"users":[{"userId":1,"username":"a"}],"syncSummary":{}}`,
			format: types.FormatUserDataSync, object: "users", index: 0, key: "role",
		},
		{
			name:   "empty users",
			doc:    `{"action":"user_data_sync","syncInfo":{},"users":[],"syncSummary":{}}`,
			format: types.FormatUserDataSync, object: "users", index: -1, key: "users",
		},
		{
			name:   "missing selected role value",
			doc:    `{"action":"role_selection","user":{"id":1,"username":"a"},"selectedRole":{"label":"x"}}`,
			format: types.FormatRoleSelection, object: "selectedRole", index: -1, key: "value",
		},
		{
			name:   "legacy task without name",
			doc:    `{"tasks":[{"id":1}]}`,
			format: types.FormatLegacy, object: "tasks", index: 0, key: "name",
		},
	}

	n := New(nil, nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := n.Normalize([]byte(tt.doc))

			var verr *ValidationError
			require.True(t, errors.As(err, &verr), "got %v", err)
			assert.Equal(t, tt.format, verr.Format)
			assert.Equal(t, tt.object, verr.Object)
			assert.Equal(t, tt.index, verr.Index)
			assert.Equal(t, tt.key, verr.Key)
			assert.Contains(t, verr.Error(), tt.key)

			// The raw payload survives for archiving
			require.NotNil(t, res)
			assert.Equal(t, tt.doc, string(res.Raw))
		})
	}
}

func TestUnrecognizedSchema(t *testing.T) {
	n := New(nil, nil)

	_, err := n.Normalize([]byte(`{"foo": 1, "bar": {}}`))
	var unrec *UnrecognizedSchemaError
	require.ErrorAs(t, err, &unrec)
	assert.Equal(t, []string{"bar", "foo"}, unrec.PresentKeys)
	assert.Contains(t, unrec.Missing, "action")

	// Recognized action with a missing section names that section
	_, err = n.Normalize([]byte(`{"action":"task_deployment","deploymentInfo":{},"assignedTasks":[]}`))
	require.ErrorAs(t, err, &unrec)
	assert.Equal(t, []string{"deploymentSummary"}, unrec.Missing)

	// An empty legacy task list is not enough
	_, err = n.Normalize([]byte(`{"tasks": []}`))
	assert.ErrorAs(t, err, &unrec)

	// A known action with incomplete sections is not read as legacy even
	// when it carries a tasks array
	_, err = n.Normalize([]byte(`{"action":"role_selection","tasks":[{"id":1,"name":"x"}]}`))
	require.ErrorAs(t, err, &unrec)
	assert.Contains(t, unrec.Missing, "user")
}

func TestLegacyDetectionIgnoresUnknownAction(t *testing.T) {
	res, err := New(nil, nil).Normalize([]byte(`{"action":"export","tasks":[{"id":1,"name":"x"}]}`))
	require.NoError(t, err)
	assert.Equal(t, types.FormatLegacy, res.Format)
}

func TestMalformedPayload(t *testing.T) {
	n := New(nil, nil)
	for _, raw := range []string{`{"a":`, `[1,2]`, `null`, ``} {
		res, err := n.Normalize([]byte(raw))
		var malformed *MalformedError
		assert.ErrorAs(t, err, &malformed, raw)
		require.NotNil(t, res)
		assert.Equal(t, raw, string(res.Raw))
	}
}

func TestCountMismatchIsWarning(t *testing.T) {
	doc := `{"action":"task_deployment","deploymentInfo":{"operator":{"userId":1,"username":"a"}},
		"assignedTasks":[{"taskId":1,"assignmentId":2,"taskName":"x","status":"pending"}],
		"deploymentSummary":{"totalTasks":3}}`

	res, err := New(nil, nil).Normalize([]byte(doc))
	require.NoError(t, err)

	assert.Len(t, res.Tasks, 1, "actual array length wins")
	assert.False(t, res.ValidationPassed)
	require.Len(t, res.Diagnostics, 1)
	assert.Equal(t, CodeCountMismatch, res.Diagnostics[0].Code)
	assert.Equal(t, types.FormatTaskDeployment, res.Diagnostics[0].Format)

	envelope := res.Document(types.SourceInbound)
	assert.Len(t, envelope.Diagnostics, 1)
	assert.False(t, envelope.ValidationPassed)
}

func TestUnknownStatusAndPriorityKeptVerbatim(t *testing.T) {
	doc := `{"tasks":[{"id":1,"name":"x","status":"Escalated","priority":"P0"}]}`

	res, err := New(nil, nil).Normalize([]byte(doc))
	require.NoError(t, err)

	task := res.Tasks[0]
	assert.Equal(t, types.TaskStatus("Escalated"), task.Status)
	assert.True(t, task.StatusFlagged)
	assert.Equal(t, types.Priority("P0"), task.Priority)
	assert.True(t, task.PriorityFlagged)
	assert.False(t, res.ValidationPassed)
	assert.Len(t, res.Diagnostics, 2)
}

func TestMissingStatusDefaultsToUnknown(t *testing.T) {
	res, err := New(nil, nil).Normalize([]byte(`{"tasks":[{"id":1,"name":"x"}]}`))
	require.NoError(t, err)
	assert.Equal(t, types.StatusUnknown, res.Tasks[0].Status)
}

func TestDuplicateTaskIDsKeepLast(t *testing.T) {
	doc := `{"tasks":[{"id":1,"name":"old"},{"id":2,"name":"other"},{"id":"1","name":"new"}]}`

	res, err := New(nil, nil).Normalize([]byte(doc))
	require.NoError(t, err)

	require.Len(t, res.Tasks, 2)
	assert.Equal(t, "new", res.Tasks[0].Name)
	assert.Equal(t, CodeDuplicateTask, res.Diagnostics[0].Code)
}

func TestSanitizesMarkup(t *testing.T) {
	doc := `{"username":"<script>x</script>dave","tasks":[{"id":1,"name":"<b>Fix</b> router & switch"}]}`

	res, err := New(nil, nil).Normalize([]byte(doc))
	require.NoError(t, err)

	assert.Equal(t, "Fix router & switch", res.Tasks[0].Name)
	assert.Equal(t, "dave", res.User.Username)
}

func TestSanitizerStripsEncodedMarkup(t *testing.T) {
	s := newSanitizer()
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "Rack switch", "Rack switch"},
		{"ampersand kept", "router & switch", "router & switch"},
		{"less-than kept", "load < 5", "load < 5"},
		{"live markup", "<img src=x onerror=alert(1)>Task", "Task"},
		{"entity encoded", "&lt;img src=x onerror=alert(1)&gt;Task", "Task"},
		{"double encoded", "&amp;lt;script&amp;gt;alert(1)&amp;lt;/script&amp;gt;Task", "Task"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := s.clean(tt.in)
			assert.Equal(t, tt.want, got)
			assert.NotContains(t, got, "<img")
			assert.NotContains(t, got, "<script")
		})
	}
}

func TestPlaceholderUsername(t *testing.T) {
	res, err := New(nil, nil).Normalize([]byte(`{"tasks":[{"id":1,"name":"x"}]}`))
	require.NoError(t, err)
	assert.Equal(t, types.PlaceholderUsername, res.User.Username)
}

func TestNormalizeDocument(t *testing.T) {
	n := New(nil, nil)

	raw := &types.MailboxDocument{Source: types.SourceInbound, RawPayload: []byte(roleSelectionDoc)}
	envelope, res, err := n.NormalizeDocument(raw)
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, types.SourceInbound, envelope.Source)
	assert.Equal(t, types.FormatRoleSelection, envelope.ProducerFormat)

	// Already normalized documents pass through
	same, res, err := n.NormalizeDocument(envelope)
	require.NoError(t, err)
	assert.Nil(t, res)
	assert.Same(t, envelope, same)
}

func TestParseTimestamp(t *testing.T) {
	want := time.Date(2025, 1, 2, 9, 30, 15, 0, time.UTC)

	tests := []struct {
		name string
		in   interface{}
		want time.Time
	}{
		{"rfc3339", "2025-01-02T09:30:15Z", want},
		{"rfc3339 offset", "2025-01-02T11:30:15+02:00", want},
		{"fractional", "2025-01-02T09:30:15.250Z", want.Add(250 * time.Millisecond)},
		{"no zone", "2025-01-02T09:30:15", want},
		{"space separated", "2025-01-02 09:30:15", want},
		{"space separated fraction", "2025-01-02 09:30:15.5", want.Add(500 * time.Millisecond)},
		{"epoch number", jsonNumber("1735810215"), want},
		{"epoch millis", jsonNumber("1735810215000"), want},
		{"epoch string", "1735810215", want},
		{"date only", "2025-01-02", time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseTimestamp(tt.in)
			require.NoError(t, err)
			assert.True(t, tt.want.Equal(got), "want %v got %v", tt.want, got)
		})
	}

	for _, bad := range []interface{}{"", "next tuesday", true, jsonNumber("-1")} {
		_, err := parseTimestamp(bad)
		assert.Error(t, err, "%v", bad)
	}
}
