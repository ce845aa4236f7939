package main

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/raftchat/raftchat/pkg/client"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// chatResource is a single declarative unit in an apply file: either a new
// account or a message to send, identified by Kind the way a Kubernetes-style
// manifest identifies its resource type.
type chatResource struct {
	APIVersion string                 `yaml:"apiVersion"`
	Kind       string                 `yaml:"kind"`
	Metadata   resourceMetadata       `yaml:"metadata"`
	Spec       map[string]interface{} `yaml:"spec"`
}

type resourceMetadata struct {
	Name string `yaml:"name"`
}

var applyCmd = &cobra.Command{
	Use:   "apply",
	Short: "Apply a batch of accounts and messages from a YAML file",
	Long: `Apply reads a multi-document YAML file and replays each document
against the cluster in order.

Example:
  apiVersion: chat/v1
  kind: Account
  metadata:
    name: alice
  spec:
    password: hunter2
  ---
  apiVersion: chat/v1
  kind: Message
  metadata:
    name: greeting
  spec:
    sender: alice
    recipient: bob
    content: hello bob
`,
	RunE: runApply,
}

func runApply(cmd *cobra.Command, args []string) error {
	filename, _ := cmd.Flags().GetString("file")

	data, err := os.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("read file: %w", err)
	}

	c, err := newClient(cmd)
	if err != nil {
		return err
	}
	defer c.Close()

	decoder := yaml.NewDecoder(bytes.NewReader(data))
	for {
		var resource chatResource
		if err := decoder.Decode(&resource); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return fmt.Errorf("parse YAML document: %w", err)
		}
		if resource.Kind == "" {
			continue
		}
		if err := applyResource(c, &resource); err != nil {
			return fmt.Errorf("%s %q: %w", resource.Kind, resource.Metadata.Name, err)
		}
	}
	return nil
}

func applyResource(c *client.Client, resource *chatResource) error {
	switch resource.Kind {
	case "Account":
		return applyAccount(c, resource)
	case "Message":
		return applyMessage(c, resource)
	default:
		return fmt.Errorf("unsupported resource kind: %s", resource.Kind)
	}
}

func applyAccount(c *client.Client, resource *chatResource) error {
	username := resource.Metadata.Name
	password := getString(resource.Spec, "password", "")
	if password == "" {
		return fmt.Errorf("account password is required")
	}

	if err := c.Register(username, hashPassword(password)); err != nil {
		return fmt.Errorf("register: %w", err)
	}
	fmt.Printf("account created: %s\n", username)
	return nil
}

func applyMessage(c *client.Client, resource *chatResource) error {
	sender := getString(resource.Spec, "sender", "")
	recipient := getString(resource.Spec, "recipient", "")
	content := getString(resource.Spec, "content", "")

	if sender == "" || recipient == "" {
		return fmt.Errorf("message sender and recipient are required")
	}

	id, err := c.SendMessage(sender, recipient, content)
	if err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	fmt.Printf("message %d sent: %s -> %s\n", id, sender, recipient)
	return nil
}

func getString(m map[string]interface{}, key, defaultValue string) string {
	if v, ok := m[key]; ok {
		return fmt.Sprintf("%v", v)
	}
	return defaultValue
}
