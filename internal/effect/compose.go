// Copyright 2025 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package effect

// Ordered is the composed pre/post effect lists for one operation, built
// by Compose.
type Ordered struct {
	Pre  []*Effect
	Post []*Effect
}

// Compose splits effects drawn from the node's ancestry into ordered pre-
// and post-phase lists. levelsRootFirst must list one slice per tree level,
// ordered from the mount root down to the operation's own node (i.e.
// ancestor-distance descending), with each level's effects already sorted
// by attachment time ascending. That ordering, preserved by a single
// root-to-leaf append, yields ancestors first, then the node's own,
// oldest first.
func Compose(levelsRootFirst [][]*Effect) Ordered {
	var out Ordered
	for _, level := range levelsRootFirst {
		for _, e := range level {
			if e.Phase() == PhasePre {
				out.Pre = append(out.Pre, e)
			} else {
				out.Post = append(out.Post, e)
			}
		}
	}
	return out
}
