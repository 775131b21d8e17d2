package querycache

func CycleIssues(cycleID string) string {
	return "CYCLE_ISSUES_" + cycleID
}

func ModuleIssues(moduleID string) string {
	return "MODULE_ISSUES_" + moduleID
}

func ProjectIssues(workspace, project string) string {
	return "PROJECT_ISSUES_LIST_" + workspace + "_" + project
}

func StateList(workspace, project string) string {
	return "STATE_LIST_" + workspace + "_" + project
}
