package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/tendant/simple-attachment/pkg/simpleattachment"
	"github.com/tendant/simple-attachment/pkg/simpleattachment/admin"
	"github.com/tendant/simple-attachment/pkg/simpleattachment/config"
)

func newPutCmd(opts *rootOptions) *cobra.Command {
	var (
		attachmentType string
		ownerType      string
		ownerID        string
		name           string
	)

	cmd := &cobra.Command{
		Use:   "put <file>",
		Short: "Upload a file as a new attachment",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			owner, err := simpleattachment.NewOwnerRef(ownerType, ownerID)
			if err != nil {
				return err
			}
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()
			if name == "" {
				name = filepath.Base(args[0])
			}

			return opts.withComponents(cmd.Context(), cmd.ErrOrStderr(), func(_ *config.Config, comps *config.Components) error {
				a, err := comps.Service.Create(cmd.Context(), simpleattachment.CreateAttachmentRequest{
					AttachmentType: attachmentType,
					OriginalName:   name,
					Owner:          owner,
					Reader:         f,
				})
				if err != nil {
					return err
				}
				if opts.jsonOutput {
					return writeJSON(cmd.OutOrStdout(), a)
				}
				return writeAttachment(cmd.OutOrStdout(), a)
			})
		},
	}

	cmd.Flags().StringVar(&attachmentType, "type", "", "attachment type tag, e.g. resume")
	cmd.Flags().StringVar(&ownerType, "owner-type", "", "owner kind")
	cmd.Flags().StringVar(&ownerID, "owner-id", "", "owner id")
	cmd.Flags().StringVar(&name, "name", "", "original file name (default: base name of <file>)")
	return cmd
}

func newListCmd(opts *rootOptions) *cobra.Command {
	var (
		ownerType string
		ownerID   string
		limit     int
		offset    int
	)

	cmd := &cobra.Command{
		Use:   "ls",
		Short: "List attachments, optionally for one owner",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			owner, err := simpleattachment.NewOwnerRef(ownerType, ownerID)
			if err != nil {
				return err
			}

			return opts.withComponents(cmd.Context(), cmd.ErrOrStderr(), func(_ *config.Config, comps *config.Components) error {
				var list []*simpleattachment.Attachment
				if owner != nil {
					list, err = comps.Service.FindByOwner(cmd.Context(), owner.Type, owner.ID)
				} else {
					list, err = comps.Repository.ListAttachments(cmd.Context(), simpleattachment.ListAttachmentsParams{Limit: limit, Offset: offset})
				}
				if err != nil {
					return err
				}
				if opts.jsonOutput {
					return writeJSON(cmd.OutOrStdout(), list)
				}
				for _, a := range list {
					if err := writePlain(cmd.OutOrStdout(), "%s  %-8s %8s  %s\n",
						a.ID, a.Category(), humanize.Bytes(uint64(a.SizeBytes)), a.StoredPath); err != nil {
						return err
					}
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&ownerType, "owner-type", "", "owner kind")
	cmd.Flags().StringVar(&ownerID, "owner-id", "", "owner id")
	cmd.Flags().IntVar(&limit, "limit", 100, "maximum records")
	cmd.Flags().IntVar(&offset, "offset", 0, "records to skip")
	return cmd
}

func newGetCmd(opts *rootOptions) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "get <id>",
		Short: "Show an attachment, or download its content with --output",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid attachment id: %w", err)
			}

			return opts.withComponents(cmd.Context(), cmd.ErrOrStderr(), func(_ *config.Config, comps *config.Components) error {
				if output == "" {
					a, err := comps.Service.Get(cmd.Context(), id)
					if err != nil {
						return err
					}
					if opts.jsonOutput {
						return writeJSON(cmd.OutOrStdout(), a)
					}
					return writeAttachment(cmd.OutOrStdout(), a)
				}

				rc, err := comps.Service.Open(cmd.Context(), id)
				if err != nil {
					return err
				}
				defer rc.Close()

				var w io.Writer = cmd.OutOrStdout()
				if output != "-" {
					f, err := os.Create(output)
					if err != nil {
						return err
					}
					defer f.Close()
					w = f
				}
				_, err = io.Copy(w, rc)
				return err
			})
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "write content to this file ('-' for stdout)")
	return cmd
}

func newRemoveCmd(opts *rootOptions) *cobra.Command {
	var purge bool

	cmd := &cobra.Command{
		Use:   "rm <id>",
		Short: "Delete an attachment record",
		Long: `Deletes the attachment record. The blob stays in storage until the next
reconcile run, unless --purge is given.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid attachment id: %w", err)
			}

			return opts.withComponents(cmd.Context(), cmd.ErrOrStderr(), func(_ *config.Config, comps *config.Components) error {
				if purge {
					err = comps.Service.Purge(cmd.Context(), id)
				} else {
					err = comps.Service.Delete(cmd.Context(), id)
				}
				if errors.Is(err, simpleattachment.ErrAttachmentNotFound) {
					return fmt.Errorf("attachment %s not found", id)
				}
				if err != nil {
					return err
				}
				return writePlain(cmd.OutOrStdout(), "%s %s\n", color.GreenString("deleted"), id)
			})
		},
	}

	cmd.Flags().BoolVar(&purge, "purge", false, "also delete the blob")
	return cmd
}

func newStatsCmd(opts *rootOptions) *cobra.Command {
	var ownerType string

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show attachment counts and sizes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			req := admin.StatisticsRequest{}
			if ownerType != "" {
				t, err := simpleattachment.ParseOwnerType(ownerType)
				if err != nil {
					return err
				}
				req.OwnerType = t
			}

			return opts.withComponents(cmd.Context(), cmd.ErrOrStderr(), func(_ *config.Config, comps *config.Components) error {
				resp, err := comps.Admin.GetStatistics(cmd.Context(), req)
				if err != nil {
					return err
				}
				if opts.jsonOutput {
					return writeJSON(cmd.OutOrStdout(), resp)
				}
				s := resp.Statistics
				w := cmd.OutOrStdout()
				if err := writePlain(w, "total: %d (%s), unowned: %d\n", s.TotalCount, humanize.Bytes(uint64(s.TotalBytes)), s.UnownedCount); err != nil {
					return err
				}
				for _, group := range []struct {
					label  string
					counts map[string]int64
				}{
					{"category", s.ByCategory},
					{"type", s.ByAttachmentType},
					{"owner", s.ByOwnerType},
				} {
					for k, v := range group.counts {
						if err := writePlain(w, "%s.%s: %d\n", group.label, k, v); err != nil {
							return err
						}
					}
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&ownerType, "owner-type", "", "restrict to one owner kind")
	return cmd
}

func newDanglingCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "dangling",
		Short: "List attachments whose owner no longer exists",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withComponents(cmd.Context(), cmd.ErrOrStderr(), func(_ *config.Config, comps *config.Components) error {
				resp, err := comps.Admin.FindDangling(cmd.Context(), admin.DanglingRequest{})
				if err != nil {
					return err
				}
				if opts.jsonOutput {
					return writeJSON(cmd.OutOrStdout(), resp)
				}
				w := cmd.OutOrStdout()
				for _, d := range resp.Dangling {
					if err := writePlain(w, "%s  %s  %s\n", d.Attachment.ID, color.YellowString(d.Owner.String()), d.Attachment.StoredPath); err != nil {
						return err
					}
				}
				for t, n := range resp.Unchecked {
					if err := writePlain(w, "%s %d %s attachments (no lookup configured)\n", color.New(color.Faint).Sprint("unchecked"), n, t); err != nil {
						return err
					}
				}
				return writePlain(w, "checked=%d dangling=%d\n", resp.Checked, len(resp.Dangling))
			})
		},
	}
}

func writeAttachment(w io.Writer, a *simpleattachment.Attachment) error {
	owner := "-"
	if a.Owner != nil {
		owner = a.Owner.String()
	}
	return writePlain(w, "id: %s\ntype: %s\npath: %s\nname: %s\ncategory: %s\nsize: %s\nowner: %s\ncreated_at: %s\n",
		a.ID, a.AttachmentType, a.StoredPath, a.OriginalName, a.Category(),
		humanize.Bytes(uint64(a.SizeBytes)), owner, a.CreatedAt.Format("2006-01-02T15:04:05Z07:00"))
}
