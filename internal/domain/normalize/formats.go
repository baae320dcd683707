package normalize

import (
	"strconv"
	"time"

	"github.com/GriffinCanCode/clouddesk/internal/shared/types"
)

// Mandatory keys per object
var (
	operatorKeys       = []string{"userId", "username"}
	assignedTaskKeys   = []string{"taskId", "assignmentId", "taskName", "status"}
	syncUserKeys       = []string{"userId", "username", "role"}
	roleUserKeys       = []string{"id", "username"}
	selectedRoleKeys   = []string{"value"}
	legacyTaskKeys     = []string{"id", "name"}
	deploymentTimeKeys = []string{"deployedAt"}
)

// TaskDeployment: an operator plus the tasks deployed to them.
//
//	{"action":"task_deployment",
//	 "deploymentInfo":{"deploymentId":12,"deployedAt":"...","operator":{"userId":1,"username":"alice",...}},
//	 "assignedTasks":[{"taskId":7,"assignmentId":70,"taskName":"...","status":"pending",...}],
//	 "deploymentSummary":{"totalTasks":1}}
func convertTaskDeployment(n *Normalizer, doc object, res *Result) error {
	f := res.Format

	info, ok := doc.obj("deploymentInfo")
	if !ok {
		return &ValidationError{Format: f, Object: "deploymentInfo", Index: -1, Key: "deploymentInfo", Reason: "must be an object"}
	}
	operator, ok := info.obj("operator")
	if !ok {
		return missingKey(f, "deploymentInfo", -1, "operator")
	}
	if key, missing := operator.missing(operatorKeys...); missing {
		return missingKey(f, "operator", -1, key)
	}
	userID, ok := operator.intID("userId")
	if !ok {
		return notNumeric(f, "operator", -1, "userId")
	}
	for _, key := range deploymentTimeKeys {
		if info.has(key) {
			if _, err := parseTimestamp(info[key]); err != nil {
				return &ValidationError{Format: f, Object: "deploymentInfo", Index: -1, Key: key, Reason: err.Error()}
			}
		}
	}

	res.User = userFrom(operator, strconv.FormatInt(userID, 10))

	entries, ok := doc.arr("assignedTasks")
	if !ok {
		return &ValidationError{Format: f, Object: "assignedTasks", Index: -1, Key: "assignedTasks", Reason: "must be an array"}
	}
	tasks := make([]types.CanonicalTask, 0, len(entries))
	for i, e := range entries {
		entry, ok := e.(map[string]interface{})
		if !ok {
			return &ValidationError{Format: f, Object: "assignedTasks", Index: i, Key: "", Reason: "must be an object"}
		}
		task, err := assignedTask(f, object(entry), i, res)
		if err != nil {
			return err
		}
		tasks = append(tasks, task)
	}
	res.Tasks = tasks

	if summary, ok := doc.obj("deploymentSummary"); ok {
		checkCount(res, summary, len(entries), "assignedTasks", "totalTasks", "taskCount")
	}
	return nil
}

func assignedTask(f types.ProducerFormat, e object, i int, res *Result) (types.CanonicalTask, error) {
	if key, missing := e.missing(assignedTaskKeys...); missing {
		return types.CanonicalTask{}, missingKey(f, "assignedTasks", i, key)
	}
	taskID, ok := e.intID("taskId")
	if !ok {
		return types.CanonicalTask{}, notNumeric(f, "assignedTasks", i, "taskId")
	}
	if _, ok := e.intID("assignmentId"); !ok {
		return types.CanonicalTask{}, notNumeric(f, "assignedTasks", i, "assignmentId")
	}

	task := types.CanonicalTask{
		ID:          types.TaskID(strconv.FormatInt(taskID, 10)),
		Name:        e.str("taskName"),
		Type:        e.first("taskType", "type"),
		Phase:       e.first("phase", "taskPhase"),
		RoleBinding: e.first("roleBinding", "role"),
		Description: e.first("description", "taskDescription"),
		Status:      types.ParseStatus(e.str("status")),
		Priority:    types.ParsePriority(e.str("priority")),
	}

	if err := applyProgress(&task, e, res, "progress", "progressPercent"); err != nil {
		return task, err
	}
	if err := applyTimes(f, "assignedTasks", i, &task, e, []string{"assignedAt"}, []string{"lastUpdate", "updatedAt"}); err != nil {
		return task, err
	}
	return task, nil
}

// UserDataSync carries identities only; tasks come from the remote API.
func convertUserDataSync(n *Normalizer, doc object, res *Result) error {
	f := res.Format
	res.NeedsRemoteFetch = true

	users, ok := doc.arr("users")
	if !ok {
		return &ValidationError{Format: f, Object: "users", Index: -1, Key: "users", Reason: "must be an array"}
	}
	if len(users) == 0 {
		return &ValidationError{Format: f, Object: "users", Index: -1, Key: "users", Reason: "must contain at least one entry"}
	}

	for i, u := range users {
		entry, ok := u.(map[string]interface{})
		if !ok {
			return &ValidationError{Format: f, Object: "users", Index: i, Key: "", Reason: "must be an object"}
		}
		user := object(entry)
		if key, missing := user.missing(syncUserKeys...); missing {
			return missingKey(f, "users", i, key)
		}
		userID, ok := user.intID("userId")
		if !ok {
			return notNumeric(f, "users", i, "userId")
		}
		if i == 0 {
			res.User = userFrom(user, strconv.FormatInt(userID, 10))
		}
	}

	if info, ok := doc.obj("syncInfo"); ok && info.has("syncedAt") {
		if _, err := parseTimestamp(info["syncedAt"]); err != nil {
			return &ValidationError{Format: f, Object: "syncInfo", Index: -1, Key: "syncedAt", Reason: err.Error()}
		}
	}
	if summary, ok := doc.obj("syncSummary"); ok {
		checkCount(res, summary, len(users), "users", "totalUsers", "userCount")
	}
	res.Tasks = []types.CanonicalTask{}
	return nil
}

// RoleSelection signals the browser finished login; it carries no tasks.
func convertRoleSelection(n *Normalizer, doc object, res *Result) error {
	f := res.Format

	user, ok := doc.obj("user")
	if !ok {
		return &ValidationError{Format: f, Object: "user", Index: -1, Key: "user", Reason: "must be an object"}
	}
	if key, missing := user.missing(roleUserKeys...); missing {
		return missingKey(f, "user", -1, key)
	}
	userID, ok := user.intID("id")
	if !ok {
		return notNumeric(f, "user", -1, "id")
	}

	role, ok := doc.obj("selectedRole")
	if !ok {
		return &ValidationError{Format: f, Object: "selectedRole", Index: -1, Key: "selectedRole", Reason: "must be an object"}
	}
	if key, missing := role.missing(selectedRoleKeys...); missing {
		return missingKey(f, "selectedRole", -1, key)
	}

	res.User = userFrom(user, strconv.FormatInt(userID, 10))
	res.SelectedRole = &types.SelectedRole{
		Value: n.sanitizer.clean(role.str("value")),
		Label: n.sanitizer.clean(role.first("label", "value")),
	}
	if res.User.Role == "" {
		res.User.Role = res.SelectedRole.Value
	}
	res.Tasks = []types.CanonicalTask{}
	return nil
}

// Legacy producers wrote a bare task list, optionally with a user object.
func convertLegacy(n *Normalizer, doc object, res *Result) error {
	f := res.Format

	if user, ok := doc.obj("user"); ok {
		res.User = userFrom(user, user.first("id", "userId"))
	} else {
		res.User = types.CanonicalUser{
			ID:       doc.first("userId", "user_id"),
			Username: doc.first("username", "user"),
			Role:     doc.str("role"),
		}
	}

	entries, _ := doc.arr("tasks")
	tasks := make([]types.CanonicalTask, 0, len(entries))
	for i, e := range entries {
		entry, ok := e.(map[string]interface{})
		if !ok {
			return &ValidationError{Format: f, Object: "tasks", Index: i, Key: "", Reason: "must be an object"}
		}
		t := object(entry)
		if key, missing := t.missing(legacyTaskKeys...); missing {
			return missingKey(f, "tasks", i, key)
		}

		task := types.CanonicalTask{
			ID:          types.TaskID(t.str("id")),
			Name:        t.str("name"),
			Type:        t.first("type", "task_type"),
			Phase:       t.str("phase"),
			RoleBinding: t.first("role", "role_binding", "roleBinding"),
			Description: t.str("description"),
			Status:      types.ParseStatus(t.str("status")),
			Priority:    types.ParsePriority(t.str("priority")),
		}
		if task.ID == "" {
			return &ValidationError{Format: f, Object: "tasks", Index: i, Key: "id", Reason: "must be a number or string"}
		}
		if err := applyProgress(&task, t, res, "progress", "progress_percent"); err != nil {
			return err
		}
		if err := applyTimes(f, "tasks", i, &task, t, []string{"assigned_at", "assignedAt"}, []string{"updated_at", "last_update", "lastUpdate"}); err != nil {
			return err
		}
		tasks = append(tasks, task)
	}
	res.Tasks = tasks

	checkCount(res, doc, len(entries), "tasks", "count", "total")
	return nil
}

func userFrom(o object, id string) types.CanonicalUser {
	user := types.CanonicalUser{
		ID:          id,
		Username:    o.str("username"),
		Role:        o.first("role", "roleName"),
		AccountType: o.first("accountType", "account_type"),
	}

	if creds, ok := o.obj("credentials"); ok {
		user.Credentials = &types.Credentials{
			Username: creds.first("username", "user"),
			Password: creds.str("password"),
			Role:     creds.first("role", "loginType"),
		}
	} else if pw := o.str("password"); pw != "" {
		user.Credentials = &types.Credentials{
			Username: user.Username,
			Password: pw,
			Role:     user.Role,
		}
	}
	if user.Credentials != nil && user.Credentials.Username == "" {
		user.Credentials.Username = user.Username
	}
	return user
}

func applyProgress(task *types.CanonicalTask, o object, res *Result, keys ...string) error {
	for _, key := range keys {
		if !o.has(key) {
			continue
		}
		p, ok := o.intValue(key)
		if !ok {
			res.warn(CodeBadProgress, "task %s has non-numeric %s %q; using 0", task.ID, key, o.str(key))
			return nil
		}
		task.ProgressPercent = types.ClampProgress(p)
		return nil
	}
	return nil
}

func applyTimes(f types.ProducerFormat, name string, i int, task *types.CanonicalTask, o object, assigned, updated []string) error {
	parse := func(keys []string) (*time.Time, error) {
		for _, key := range keys {
			if !o.has(key) {
				continue
			}
			ts, err := parseTimestamp(o[key])
			if err != nil {
				return nil, &ValidationError{Format: f, Object: name, Index: i, Key: key, Reason: err.Error()}
			}
			return &ts, nil
		}
		return nil, nil
	}

	var err error
	if task.AssignedAt, err = parse(assigned); err != nil {
		return err
	}
	if task.LastUpdate, err = parse(updated); err != nil {
		return err
	}
	return nil
}

func checkCount(res *Result, o object, actual int, array string, keys ...string) {
	for _, key := range keys {
		if !o.has(key) {
			continue
		}
		declared, ok := o.intValue(key)
		if !ok {
			res.warn(CodeCountMismatch, "%s %q is not a number; using %d entries in %s", key, o.str(key), actual, array)
			return
		}
		if declared != actual {
			res.warn(CodeCountMismatch, "%s declares %d but %s holds %d; using %d", key, declared, array, actual, actual)
		}
		return
	}
}
