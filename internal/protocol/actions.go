package protocol

// Action is the fixed vocabulary the side panel dispatches to the action
// executor. It is a closed set: any string outside this table is
// rejected at the boundary rather than passed down to the executor.
type Action string

const (
	ActionNavigate          Action = "navigate"
	ActionClick             Action = "click"
	ActionType              Action = "type"
	ActionScroll            Action = "scroll"
	ActionScreenshot        Action = "screenshot"
	ActionEvaluate          Action = "evaluate"
	ActionGetPageInfo       Action = "get_page_info"
	ActionGetDOMTree        Action = "get_dom_tree"
	ActionGetTabs           Action = "get_tabs"
	ActionSwitchTab         Action = "switch_tab"
	ActionPressKey          Action = "press_key"
	ActionWaitForSelector   Action = "wait_for_selector"
	ActionWaitForLoadState  Action = "wait_for_load_state"
	ActionWaitForFunction   Action = "wait_for_function"
	ActionEnableNetwork     Action = "enable_network"
	ActionGetNetworkReqs    Action = "get_network_requests"
	ActionWaitForResponse   Action = "wait_for_response"
	ActionUploadFile        Action = "upload_file"
	ActionGetDialog         Action = "get_dialog"
	ActionHandleDialog      Action = "handle_dialog"
	ActionHover             Action = "hover"
	ActionDoubleClick       Action = "double_click"
	ActionRightClick        Action = "right_click"
	ActionDownload          Action = "download"
	ActionLock              Action = "lock"
	ActionUnlock            Action = "unlock"
	ActionUpdateStatus      Action = "update_status"
)

// actionSet backs IsKnownAction; a map literal keeps the membership test
// O(1) without re-deriving it from the const block by reflection.
var actionSet = map[Action]bool{
	ActionNavigate: true, ActionClick: true, ActionType: true, ActionScroll: true,
	ActionScreenshot: true, ActionEvaluate: true, ActionGetPageInfo: true,
	ActionGetDOMTree: true, ActionGetTabs: true, ActionSwitchTab: true,
	ActionPressKey: true, ActionWaitForSelector: true, ActionWaitForLoadState: true,
	ActionWaitForFunction: true, ActionEnableNetwork: true, ActionGetNetworkReqs: true,
	ActionWaitForResponse: true, ActionUploadFile: true, ActionGetDialog: true,
	ActionHandleDialog: true, ActionHover: true, ActionDoubleClick: true,
	ActionRightClick: true, ActionDownload: true, ActionLock: true,
	ActionUnlock: true, ActionUpdateStatus: true,
}

// IsKnownAction reports whether a is in the declared vocabulary.
func IsKnownAction(a Action) bool {
	return actionSet[a]
}

// toolToAction is the helper's total, compile-time name->action mapping
// table (§4.4). browser_get_connection_status is deliberately absent: the
// helper special-cases it and never forwards it as a REQUEST.
var toolToAction = map[string]Action{
	"browser_navigate":              ActionNavigate,
	"browser_click":                 ActionClick,
	"browser_type":                  ActionType,
	"browser_scroll":                ActionScroll,
	"browser_screenshot":            ActionScreenshot,
	"browser_evaluate":              ActionEvaluate,
	"browser_get_page_info":         ActionGetPageInfo,
	"browser_get_dom_tree":          ActionGetDOMTree,
	"browser_get_tabs":              ActionGetTabs,
	"browser_switch_tab":            ActionSwitchTab,
	"browser_press_key":             ActionPressKey,
	"browser_wait_for_selector":     ActionWaitForSelector,
	"browser_wait_for_load_state":   ActionWaitForLoadState,
	"browser_wait_for_function":     ActionWaitForFunction,
	"browser_enable_network":        ActionEnableNetwork,
	"browser_get_network_requests":  ActionGetNetworkReqs,
	"browser_wait_for_response":     ActionWaitForResponse,
	"browser_upload_file":           ActionUploadFile,
	"browser_get_dialog":            ActionGetDialog,
	"browser_handle_dialog":         ActionHandleDialog,
	"browser_hover":                 ActionHover,
	"browser_double_click":          ActionDoubleClick,
	"browser_right_click":           ActionRightClick,
	"browser_download":              ActionDownload,
	"browser_lock":                  ActionLock,
	"browser_unlock":                ActionUnlock,
	"browser_update_status":         ActionUpdateStatus,
}

// StatusToolName is the one MCP tool the helper answers locally instead
// of forwarding as a REQUEST (§4.4).
const StatusToolName = "browser_get_connection_status"

// ActionFor translates an MCP tool name to its action, per the helper's
// fixed, total mapping table. The bool reports whether name is known.
func ActionFor(name string) (Action, bool) {
	a, ok := toolToAction[name]
	return a, ok
}

// ToolNames returns every MCP tool name the helper exposes, including
// StatusToolName, for building the MCP server's tool list.
func ToolNames() []string {
	names := make([]string, 0, len(toolToAction)+1)
	for n := range toolToAction {
		names = append(names, n)
	}
	names = append(names, StatusToolName)
	return names
}
