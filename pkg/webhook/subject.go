// Copyright 2025 The Authors (see AUTHORS file)
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package webhook

import "strings"

// unknownToken marks a subject position whose value could not be
// derived from the payload.
const unknownToken = "?"

// projectSeparator is GitLab's marker between the project path and the
// rest of a web URL. This is a GitLab convention, not a published
// specification; URLs without it fall through the derivation ladder.
const projectSeparator = "/-/"

// sanitizeToken makes a string safe as a single subject token: "."
// would introduce a spurious token boundary, so it becomes "~"; empty
// values become the unknown marker.
func sanitizeToken(s string) string {
	if s == "" {
		return unknownToken
	}
	return strings.ReplaceAll(s, ".", "~")
}

// splitPath splits a namespace path on "/", dropping empty segments and
// replacing "." inside each segment so token boundaries stay
// unambiguous.
func splitPath(path string) []string {
	segments := make([]string, 0, 4)
	for _, segment := range strings.Split(path, "/") {
		if segment == "" {
			continue
		}
		segments = append(segments, strings.ReplaceAll(segment, ".", "~"))
	}
	return segments
}

// joinScope folds path segments into (namespace, project). With
// withProject, the last segment names the project; a single segment can
// only name the namespace.
func joinScope(segments []string, withProject bool) (string, string) {
	if withProject && len(segments) > 1 {
		return strings.Join(segments[:len(segments)-1], "~"), segments[len(segments)-1]
	}
	return strings.Join(segments, "~"), unknownToken
}

// buildGitHubSubject derives "github.<org>.<repo>.<event>". The event
// kind comes from the request header; org and repo come from the
// repository block, falling back to the organization block for
// org-level events.
func buildGitHubSubject(event *githubEvent, eventType string) string {
	org, repo := "", ""
	switch {
	case event.Repository.Owner.Login != "" || event.Repository.Name != "":
		org = event.Repository.Owner.Login
		repo = event.Repository.Name
	case event.Organization.Login != "":
		org = event.Organization.Login
	}

	return strings.Join([]string{
		ProviderGitHub,
		sanitizeToken(org),
		sanitizeToken(repo),
		sanitizeToken(eventType),
	}, ".")
}

// buildGitLabSubject derives "gitlab.<namespace>.<project>.<event>".
// The event kind comes from object_kind, falling back to event_name.
// Namespace and project are resolved by four ordered, mutually
// exclusive rules: project path, group path, object URL, instance-wide
// fallback.
func buildGitLabSubject(event *gitlabEvent) string {
	eventName := strings.ToLower(event.ObjectKind)
	if eventName == "" {
		eventName = strings.ToLower(event.EventName)
	}
	if eventName == "" {
		eventName = "unknown"
	}

	namespace, project := gitlabScope(event)

	return strings.Join([]string{
		ProviderGitLab,
		namespace,
		project,
		sanitizeToken(eventName),
	}, ".")
}

func gitlabScope(event *gitlabEvent) (string, string) {
	// Project-scoped payloads carry the full path to the project.
	path := event.PathWithNamespace
	if path == "" {
		path = event.Project.PathWithNamespace
	}
	if segments := splitPath(path); len(segments) > 0 {
		return joinScope(segments, true)
	}

	// Group-scoped payloads (group and subgroup hooks) name the group
	// but no project.
	groupPath := event.Group.FullPath
	if groupPath == "" {
		groupPath = event.Group.Path
	}
	if groupPath == "" {
		groupPath = event.Group.GroupPath
	}
	if segments := splitPath(groupPath); len(segments) > 0 {
		return joinScope(segments, false)
	}

	// Some system payloads only carry the object URL. Strip scheme and
	// host, truncate at the project separator, and treat the remainder
	// as a project path when a project id is present.
	if url := event.ObjectAttributes.URL; strings.Contains(url, "://") {
		trimmed := url[strings.Index(url, "://")+len("://"):]
		if _, path, ok := strings.Cut(trimmed, "/"); ok {
			path, _, _ = strings.Cut(path, projectSeparator)
			if segments := splitPath(path); len(segments) > 0 {
				return joinScope(segments, event.ObjectAttributes.ProjectID != nil)
			}
		}
	}

	return unknownToken, unknownToken
}
