package history

// BeginGroup starts a group. Nested groups fold into the outermost one.
func (h *History) BeginGroup() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.groupDepth++
}

// EndGroup closes a group. When the outermost group closes, its changes
// become a single undo step.
func (h *History) EndGroup() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.groupDepth == 0 {
		return
	}
	h.groupDepth--
	if h.groupDepth > 0 {
		return
	}

	changes := h.groupChanges
	h.groupChanges = nil
	if len(changes) > 0 {
		h.pushLocked(changes)
	}
}

// IsGrouping returns true if a group is open.
func (h *History) IsGrouping() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.groupDepth > 0
}
