/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package storage

import (
	"fmt"
	"strings"
)

func splitExpression(expression string) []string {
	return strings.Split(expression, ":")
}

func errInvalidQuery(expression string) error {
	return fmt.Errorf(`"%s" is not in a valid expression format. `+
		"it must be in the following format: TagName:TagValue", expression)
}

// ValidateTags checks that no tag name or value contains ':'.
func ValidateTags(tags []Tag) error {
	for _, tag := range tags {
		if strings.Contains(tag.Name, ":") {
			return fmt.Errorf(`"%s" is an invalid tag name since it contains one or more ':' characters`, tag.Name)
		}

		if strings.Contains(tag.Value, ":") {
			return fmt.Errorf(`"%s" is an invalid tag value since it contains one or more ':' characters`, tag.Value)
		}
	}

	return nil
}
