package ipc

const (
	ChannelWorkspaceLoad          = "workspace:load"
	ChannelWorkspaceSave          = "workspace:save"
	ChannelWorkspaceAddFolder     = "workspace:add-folder"
	ChannelWorkspaceRemoveFolder  = "workspace:remove-folder"
	ChannelWorkspaceValidatePaths = "workspace:validate-paths"

	ChannelWatchStart  = "watch:start"
	ChannelWatchStop   = "watch:stop"
	ChannelWatchStatus = "watch:status"

	ChannelFileGetTree = "file:get-tree"
	ChannelFileRead    = "file:read"
	ChannelFileWrite   = "file:write"
	ChannelFileRename  = "file:rename"
)
